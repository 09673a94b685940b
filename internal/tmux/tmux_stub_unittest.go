//go:build unittest

package tmux

// RealTmux is a no-op stub used during unit testing (build tag: unittest).
// The real implementation is in tmux_real.go.
type RealTmux struct{}

func (RealTmux) SpawnIn(sessionName, workspaceDir, command string) error { return nil }
func (RealTmux) Send(sessionName, text string) error                    { return nil }
func (RealTmux) Capture(sessionName string, n int) (string, error)      { return "", nil }
func (RealTmux) Stop(sessionName string) error                          { return nil }
