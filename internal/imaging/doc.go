// Package imaging holds the frames fed to vision skills: CPU bitmaps in
// Gray8, BGRA8, RGBA8 or NV12, or GPU surfaces that are downloaded on demand.
// It converts between formats, crops, resizes and turns frames into NCHW
// float tensors for model input.
package imaging
