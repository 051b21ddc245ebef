// Package vframe encodes and decodes V-Frames.
//
// Wire layout, all integers little-endian:
//
//	version(1) msg_type(1) flags(2) stream_id(4) frame_seq(8) num_slices(8)
//	slice_len[num_slices](4 each) space_hash32(4) modality(1)
//	slices: dtype(1) shape_len(1) shape(4 each) payload
//	crc32(4) over every preceding byte
//
// Each slice_len entry is redundant with the size derived from dtype and shape
// and must agree with it. Encode, Decode and the helpers here are pure and safe
// for concurrent use.
package vframe
