// Package mock provides test doubles for the ai package interfaces with
// deterministic default behavior and function-field injection points.
package mock
