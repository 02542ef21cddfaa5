// Package shu computes the cooperative profit-share ("sisa hasil usaha")
// split applied at settlement time.
package shu

// Split is a margin divided into the fixed 60/30/10 allocation: the member
// share, the cooperative reserve, and the management fund.
type Split struct {
	SixtyCents  int64
	ThirtyCents int64
	TenCents    int64
}

// Compute divides marginCents 60/30/10 in integer minor units. The division
// remainder is allocated to the sixty bucket, so
// SixtyCents+ThirtyCents+TenCents == marginCents holds for every
// non-negative input. Negative margins are clamped to zero.
func Compute(marginCents int64) Split {
	if marginCents < 0 {
		marginCents = 0
	}
	thirty := marginCents * 3 / 10
	ten := marginCents / 10
	return Split{
		SixtyCents:  marginCents - thirty - ten,
		ThirtyCents: thirty,
		TenCents:    ten,
	}
}

// Total returns the exact sum of the three buckets.
func (s Split) Total() int64 {
	return s.SixtyCents + s.ThirtyCents + s.TenCents
}
