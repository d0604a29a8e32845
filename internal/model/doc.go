// Package model builds, trains and persists the convolutional classifier.
//
// A Network is described by an Architecture, a sequence of conv2d, dropout,
// flatten and dense layers over NCHW float32 input. Training and inference
// each compile a gorgonia expression graph that shares the network's weights.
//
// A saved model is two files: a JSON description of the layers and class
// names, and a zlib-compressed gob stream of the weights.
package model
