package channel

import (
	"context"
	"strings"
)

const (
	// AddressSuffix turns bare digits into a channel address.
	AddressSuffix = "@s.whatsapp.net"
	countryPrefix = "55"

	// National numbers whose canonical form misses or carries an extra
	// mobile-prefix digit come out at these total lengths. Anything else
	// is used as-is.
	lengthMissingNinth = 12
	lengthExtraDigit   = 13

	// Correction offsets into the national part: a 12-digit number gets
	// a "9" inserted at index 4, a 13-digit number drops index 3.
	ninthInsertOffset = 4
	ninthDropIndex    = 3
)

// Prober checks address existence on the channel. *Session implements it.
type Prober interface {
	Exists(ctx context.Context, address string) (bool, string, error)
}

// ResolveAddress maps raw phone digits to a channel address. It probes
// the canonical prefixed form first; on a miss at one of the two known
// ambiguity lengths it probes exactly one corrected variant (ninth digit
// inserted or removed at the mobile-prefix position). When neither probe
// resolves, the unverified canonical address is returned so the send
// attempt still happens.
func ResolveAddress(ctx context.Context, p Prober, phone string) (string, error) {
	digits := onlyDigits(phone)
	national := strings.TrimPrefix(digits, countryPrefix)
	canonical := countryPrefix + national + AddressSuffix

	found, resolved, err := p.Exists(ctx, canonical)
	if err != nil {
		return "", err
	}
	if found {
		return resolved, nil
	}

	var corrected string
	switch len(countryPrefix + national) {
	case lengthMissingNinth:
		if len(national) >= ninthInsertOffset {
			corrected = national[:ninthInsertOffset] + "9" + national[ninthInsertOffset:]
		}
	case lengthExtraDigit:
		if len(national) > ninthDropIndex+1 {
			corrected = national[:ninthDropIndex] + national[ninthDropIndex+1:]
		}
	}
	if corrected == "" {
		return canonical, nil
	}

	found, resolved, err = p.Exists(ctx, countryPrefix+corrected+AddressSuffix)
	if err != nil {
		return "", err
	}
	if found {
		return resolved, nil
	}
	return canonical, nil
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
