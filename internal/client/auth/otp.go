package auth

import (
	"strings"
	"unicode/utf8"

	"github.com/dmitrijs2005/narrate/internal/common"
)

// OTPBuffer models the verification code input: a fixed row of
// single-character slots with a focused slot. It is not safe for concurrent
// use; SignUpFlow guards its buffer.
type OTPBuffer struct {
	slots [common.OTPLength]string
	focus int
}

// Input writes value into slot i, keeping only its first character. A
// non-empty value moves focus to the next slot.
func (b *OTPBuffer) Input(i int, value string) {
	if i < 0 || i >= len(b.slots) {
		return
	}
	if value != "" {
		r, size := utf8.DecodeRuneInString(value)
		if r == utf8.RuneError && size <= 1 {
			return
		}
		value = value[:size]
	}

	b.slots[i] = value
	b.focus = i
	if value != "" && i < len(b.slots)-1 {
		b.focus = i + 1
	}
}

// Backspace handles the key on slot i: a filled slot is emptied, an empty
// one moves focus to the previous slot.
func (b *OTPBuffer) Backspace(i int) {
	if i < 0 || i >= len(b.slots) {
		return
	}
	if b.slots[i] != "" {
		b.slots[i] = ""
		b.focus = i
		return
	}
	if i > 0 {
		b.focus = i - 1
	}
}

// Type feeds s character by character starting at the focused slot, the way
// a paste or a typed line fills the row.
func (b *OTPBuffer) Type(s string) {
	for _, r := range s {
		if r == ' ' || r == '-' {
			continue
		}
		i := b.focus
		full := b.slots[i] != "" && i == len(b.slots)-1
		if full {
			return
		}
		b.Input(i, string(r))
	}
}

func (b *OTPBuffer) Focus() int {
	return b.focus
}

func (b *OTPBuffer) Slots() []string {
	out := make([]string, len(b.slots))
	copy(out, b.slots[:])
	return out
}

// Complete reports whether every slot is filled; only then may the code be
// submitted.
func (b *OTPBuffer) Complete() bool {
	for _, s := range b.slots {
		if s == "" {
			return false
		}
	}
	return true
}

func (b *OTPBuffer) Code() string {
	return strings.Join(b.slots[:], "")
}

// Reset empties every slot and focuses the first one.
func (b *OTPBuffer) Reset() {
	for i := range b.slots {
		b.slots[i] = ""
	}
	b.focus = 0
}
