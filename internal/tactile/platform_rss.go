//go:build !windows && !darwin

package tactile

// Linux reports ru_maxrss in kilobytes.
const rssUnit = 1024
