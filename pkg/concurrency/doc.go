/*
Package concurrency provides advanced concurrency primitives with observability.

Features:
  - SmartMutex / SmartRWMutex: Deadlock detection and slow lock logging
  - SafeGo / FanOut: panic-recovering goroutine helpers
*/
package concurrency
