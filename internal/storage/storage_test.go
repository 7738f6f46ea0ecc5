package storage

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
)

type seqIDs struct {
	n   int
	err error
}

func (s *seqIDs) NewID() (string, error) {
	if s.err != nil {
		return "", s.err
	}
	s.n++
	return fmt.Sprintf("id%d", s.n), nil
}

func TestObjectNamer(t *testing.T) {
	t.Parallel()

	n := ObjectNamer{Prefix: "/images/", IDs: &seqIDs{}}

	name, err := n.Name("t-72.jpg")
	require.NoError(t, err)
	require.Equal(t, "images/id1-t-72.jpg", name)

	name, err = n.Name("../../etc/passwd")
	require.NoError(t, err)
	require.Equal(t, "images/id2-passwd", name)

	name, err = n.Name("")
	require.NoError(t, err)
	require.Equal(t, "images/id3", name)

	bare := ObjectNamer{IDs: &seqIDs{}}
	name, err = bare.Name("a.png")
	require.NoError(t, err)
	require.Equal(t, "id1-a.png", name)
}

func TestObjectNamerErrors(t *testing.T) {
	t.Parallel()

	_, err := ObjectNamer{}.Name("a.png")
	require.Error(t, err)

	boom := errors.New("entropy exhausted")
	_, err = ObjectNamer{IDs: &seqIDs{err: boom}}.Name("a.png")
	require.ErrorIs(t, err, boom)
}
