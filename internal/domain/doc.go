// Package domain holds the in-memory dataset model and the pure
// transformations applied to it: coordinate normalization, CF decoding,
// the HEALPix tolerance rule and dimension unification.
package domain
