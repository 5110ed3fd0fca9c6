// Package indicator renders controller state as an LED blink pattern.
package indicator
