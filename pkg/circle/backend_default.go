//go:build !gocv

package circle

// transform is the Hough implementation in use; build with -tags gocv to
// hand the work to OpenCV instead.
var transform = houghGradient
