package cli

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvaluator struct {
	lines []string
	fail  map[string]bool
}

func (f *fakeEvaluator) Shell(_ context.Context, line string) (string, error) {
	f.lines = append(f.lines, line)
	if f.fail[line] {
		return "", fmt.Errorf("channel closed")
	}
	return "=> " + line, nil
}

func TestRepl_EvaluatesUntilExit(t *testing.T) {
	ev := &fakeEvaluator{}
	var out bytes.Buffer
	in := strings.NewReader("x = 1\n\nprint(x)\nexit\nnever()\n")

	require.NoError(t, repl(context.Background(), in, &out, ev))

	assert.Equal(t, []string{"x = 1", "print(x)"}, ev.lines)
	assert.Contains(t, out.String(), ">>> => x = 1\n")
	assert.Contains(t, out.String(), "=> print(x)\n")
}

func TestRepl_EOFEnds(t *testing.T) {
	ev := &fakeEvaluator{}
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), strings.NewReader("a\n"), &out, ev))

	assert.Equal(t, []string{"a"}, ev.lines)
	assert.True(t, strings.HasSuffix(out.String(), shellPrompt+"\n"))
}

func TestRepl_ErrorsDoNotEndTheLoop(t *testing.T) {
	ev := &fakeEvaluator{fail: map[string]bool{"bad": true}}
	var out bytes.Buffer

	require.NoError(t, repl(context.Background(), strings.NewReader("bad\ngood\nquit()\n"), &out, ev))

	assert.Equal(t, []string{"bad", "good"}, ev.lines)
	assert.Contains(t, out.String(), "=> good")
}

func TestRepl_CancelledContextEnds(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ev := &fakeEvaluator{fail: map[string]bool{"a": true}}

	require.NoError(t, repl(ctx, strings.NewReader("a\nb\n"), &bytes.Buffer{}, ev))
	assert.Equal(t, []string{"a"}, ev.lines)
}
