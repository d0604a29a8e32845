// Package imaging prepares images for the sign-language classifier.
//
// It covers every pixel-level step of the pipeline: decoding a file into a
// fixed-size grayscale square (LoadGray), optional preprocessing
// (Preprocessor), random training-time augmentation (Augmenter), conversion to
// and from the flat sample storage used by the dataset package (ToSample,
// FromSample), and labelled contact sheets for inspecting predictions
// (ContactSheet).
//
// # Coordinate System
//
// All images produced by this package have their bounds anchored at (0,0).
// Samples are row-major: pixel (x, y) of a size x size image is at index
// y*size + x.
//
// # Thread Safety
//
// ImageCache is safe for concurrent use. LoadGray, Resize, Laplacian and
// ContactSheet are stateless and may be called concurrently. An Augmenter owns
// a random source and must be used from one goroutine at a time.
//
// # Error Handling
//
// Functions return errors for:
//   - File I/O errors during image loading
//   - Undecodable image data
//   - Non-positive sizes or mismatched sample lengths
//   - Unknown preprocessing modes
package imaging
