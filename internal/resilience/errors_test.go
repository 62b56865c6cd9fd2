package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestStatusError_Kind(t *testing.T) {
	tests := []struct {
		code int
		want ErrorKind
	}{
		{401, KindAuth},
		{403, KindAuth},
		{402, KindQuota},
		{429, KindQuota},
		{408, KindNetwork},
		{502, KindNetwork},
		{404, KindUnknown},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, NewStatusError("x", tt.code, nil).Kind())
		})
	}
}

func TestStatusError_TruncatesBody(t *testing.T) {
	err := NewStatusError("firecrawl", 500, []byte(strings.Repeat("a", 1000)))
	assert.Less(t, len(err.Error()), 300)
	assert.Contains(t, err.Error(), "firecrawl: HTTP 500")
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(NewStatusError("a", 503, nil)))
	assert.True(t, IsTransient(eris.Wrap(NewStatusError("a", 429, nil), "apify: run actor")))
	assert.False(t, IsTransient(NewStatusError("a", 400, nil)))
	assert.True(t, IsTransient(errors.New("read tcp: connection reset by peer")))
	assert.False(t, IsTransient(errors.New("bad input")))
}

func TestClassify(t *testing.T) {
	var syntaxErr error = &json.SyntaxError{}
	assert.Equal(t, ErrorKind(""), Classify(nil))
	assert.Equal(t, KindAuth, Classify(eris.Wrap(NewStatusError("a", 401, nil), "wrapped")))
	assert.Equal(t, KindMalformed, Classify(fmt.Errorf("decode: %w", syntaxErr)))
	assert.Equal(t, KindNetwork, Classify(context.DeadlineExceeded))
	assert.Equal(t, KindUnknown, Classify(errors.New("mystery")))
}
