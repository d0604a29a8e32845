// Package dataset builds the labelled sample sets the classifier trains and
// evaluates on.
//
// # Layout on Disk
//
// The training root holds one directory per category; the directory name is
// the category:
//
//	asl_alphabet_train/
//	  A/       A1.jpg A2.jpg ...
//	  B/
//	  ...
//	  space/
//
// The test directory is flat and encodes the category as a file-name prefix:
//
//	asl_alphabet_test/
//	  A_test.jpg B_test.jpg ... space_test.jpg
//
// # Labels
//
// LabelEncoder sorts the category names and numbers them from zero. The same
// encoder must be used for training, test and external images.
//
// # Memory
//
// Sets are loaded eagerly. A sample is stored as ImageSize*ImageSize bytes and
// converted to float32 only when a batch is assembled.
package dataset
