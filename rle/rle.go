// Package rle implements the COCO run-length encoding used for
// segmentation bitmasks. A mask is stored as alternating run lengths of
// background and foreground pixels, always starting with background, in
// column-major pixel order. Run lengths travel either as an explicit
// integer array or as a compact string of 5-bit groups with differential
// encoding between alternating runs.
package rle

import (
	"fmt"

	json "github.com/goccy/go-json"
)

// Counts holds the run-length sequence of a mask in whichever form it
// arrived: a compact encoded string or an explicit integer array. Both
// represent the same alternating background/foreground sequence.
type Counts struct {
	Encoded string
	Runs    []int
}

// UnmarshalJSON accepts either a string or a number array for counts.
func (c *Counts) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		c.Encoded = s
		c.Runs = nil
		return nil
	}
	var runs []int
	if err := json.Unmarshal(data, &runs); err != nil {
		return fmt.Errorf("counts must be a string or an integer array")
	}
	c.Runs = runs
	c.Encoded = ""
	return nil
}

// MarshalJSON writes the compact string form when present, otherwise the
// explicit array.
func (c Counts) MarshalJSON() ([]byte, error) {
	if c.Encoded != "" || c.Runs == nil {
		return json.Marshal(c.Encoded)
	}
	return json.Marshal(c.Runs)
}

// Mask is a COCO RLE bitmask. Size is [height, width].
type Mask struct {
	Size   [2]int `json:"size"`
	Counts Counts `json:"counts"`
}

// DecodeCounts expands a compact counts string into absolute run lengths.
//
// Each integer is a sequence of 5-bit groups, one character per group
// (value = charCode - 48). The low 5 bits of each group hold part of the
// value, bit 5 (0x20) signals continuation into the next character. When
// the final group has bit 4 (0x10) set, the accumulated value is
// sign-extended negative. From the third value onward each decoded integer
// is a delta relative to the run two positions back; negative results
// clamp to zero.
func DecodeCounts(s string) []int {
	counts := make([]int, 0, len(s))
	for p := 0; p < len(s); {
		x, k := 0, 0
		for p < len(s) {
			c := int(s[p]) - 48
			p++
			x |= (c & 0x1f) << (5 * k)
			k++
			if c&0x20 == 0 {
				if c&0x10 != 0 {
					x |= -1 << (5 * k)
				}
				break
			}
		}
		if len(counts) >= 2 {
			x += counts[len(counts)-2]
		}
		if x < 0 {
			x = 0
		}
		counts = append(counts, x)
	}
	return counts
}

// EncodeCounts is the inverse of DecodeCounts: absolute run lengths to the
// compact string form.
func EncodeCounts(counts []int) string {
	out := make([]byte, 0, len(counts)*2)
	for i, n := range counts {
		x := n
		if i >= 2 {
			x -= counts[i-2]
		}
		for {
			c := x & 0x1f
			x >>= 5
			var more bool
			if c&0x10 != 0 {
				more = x != -1
			} else {
				more = x != 0
			}
			if more {
				c |= 0x20
			}
			out = append(out, byte(c+48))
			if !more {
				break
			}
		}
	}
	return string(out)
}

// Decode expands the mask into a dense width*height buffer, one byte per
// pixel (1 = foreground, 0 = background), row-major. Runs fill the mask in
// column-major order: flat offset i maps to row i%height, column i/height.
// A truncated run that would exceed the buffer is clamped, not an error.
func Decode(m Mask) ([]byte, error) {
	h, w := m.Size[0], m.Size[1]
	if h < 0 || w < 0 {
		return nil, fmt.Errorf("invalid mask size [%d, %d]", h, w)
	}
	out := make([]byte, h*w)
	runs := m.Counts.Runs
	if runs == nil && m.Counts.Encoded != "" {
		runs = DecodeCounts(m.Counts.Encoded)
	}

	idx := 0
	foreground := false
	for _, run := range runs {
		if idx >= len(out) {
			break
		}
		if run > len(out)-idx {
			run = len(out) - idx
		}
		if foreground && h > 0 {
			for i := idx; i < idx+run; i++ {
				row, col := i%h, i/h
				out[row*w+col] = 1
			}
		}
		idx += run
		foreground = !foreground
	}
	return out, nil
}

// Encode builds a Mask with compact string counts from a dense row-major
// pixel buffer of the given dimensions. Any non-zero byte is foreground.
func Encode(pixels []byte, height, width int) Mask {
	runs := []int{}
	prev := byte(0) // runs start with background
	run := 0
	for i := 0; i < height*width; i++ {
		row, col := i%height, i/height
		v := byte(0)
		if pixels[row*width+col] != 0 {
			v = 1
		}
		if v != prev {
			runs = append(runs, run)
			run = 0
			prev = v
		}
		run++
	}
	runs = append(runs, run)
	return Mask{
		Size:   [2]int{height, width},
		Counts: Counts{Encoded: EncodeCounts(runs)},
	}
}
