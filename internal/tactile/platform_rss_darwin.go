//go:build darwin

package tactile

// Darwin reports ru_maxrss in bytes.
const rssUnit = 1
