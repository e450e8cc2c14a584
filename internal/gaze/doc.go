// Package gaze implements the head-gaze cursor pipeline: landmark feature
// extraction, polynomial gaze-to-screen mapping with a 9-point calibration
// flow, rolling-average smoothing, EAR-based blink detection, and click
// arbitration. The Engine composes these stages into a frame-synchronous
// tracking loop over a FrameSource, actuating the OS cursor through a
// CursorInjector.
package gaze
