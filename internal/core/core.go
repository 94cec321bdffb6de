/*
Core drives a single backtest run.

# Module
  - tick source: historical ticks in file or journal order
  - matcher: fills OPEN orders against each tick before the strategy sees it
  - strategy runtime: single thread strategy invoker
  - risk engine: gates every proposed order between PENDING and OPEN
  - position book: folds executions into per-instrument positions

# Source
 1. CSV tick files
 2. tick records of a previous run journal

# Produce
  - orders and executions in the order store
  - optional run journal of ticks, orders, risk decisions and executions
*/
package core
