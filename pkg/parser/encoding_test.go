package parser

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectEncoding(t *testing.T) {
	tests := []struct {
		name string
		src  []byte
		want string
		bom  bool
	}{
		{"plain utf-8", []byte("import os\n"), "utf-8", false},
		{"bom", []byte("\xEF\xBB\xBFimport os\n"), "utf-8", true},
		{"cookie line one", []byte("# -*- coding: latin-1 -*-\nx = 1\n"), "latin-1", false},
		{"cookie line two", []byte("#!/usr/bin/env python\n# coding=utf8\n"), "utf-8", false},
		{"cookie after code ignored", []byte("x = 1\n# coding: latin-1\n"), "utf-8", false},
		{"unknown cookie", []byte("# coding: klingon\n"), "latin-1", false},
		{"invalid utf-8 without cookie", []byte("x = '\xe9'\n"), "latin-1", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			enc := DetectEncoding(tt.src)
			assert.Equal(t, tt.want, enc.String())
			assert.Equal(t, tt.bom, enc.BOM)
		})
	}
}

func TestEncoding_RoundTripLatin1(t *testing.T) {
	raw := []byte("# coding: latin-1\nname = 'caf\xe9'\n")
	enc := DetectEncoding(raw)

	text, err := enc.Decode(raw)
	require.NoError(t, err)
	assert.Contains(t, string(text), "café")

	back, err := enc.Encode(text)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestEncoding_RoundTripBOM(t *testing.T) {
	raw := []byte("\xEF\xBB\xBFimport os\n")
	enc := DetectEncoding(raw)

	text, err := enc.Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, "import os\n", string(text))

	back, err := enc.Encode(text)
	require.NoError(t, err)
	assert.Equal(t, raw, back)
}

func TestEncoding_DecodeInvalidUTF8(t *testing.T) {
	_, err := UTF8.Decode([]byte("# coding: utf-8\nx = '\xff'\n"))
	assert.ErrorIs(t, err, ErrUnsupportedEncoding)
}
