package derive

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testDeriver(t *testing.T) *Deriver {
	t.Helper()
	program, err := Parse("3QX9pzZwbd7uNmvBqiPW8YAV8ECV9v2v77L5pwGaSRAg")
	require.NoError(t, err)
	return NewDeriver(program)
}

func testIdentity(t *testing.T) ed25519.PublicKey {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	return pub
}

func TestDeriveIsDeterministic(t *testing.T) {
	d := testDeriver(t)
	owner := testIdentity(t)

	first := d.Derive(NamespaceProfile, owner)
	second := d.Derive(NamespaceProfile, owner)

	assert.Equal(t, first, second)
	assert.Equal(t, first.String(), second.String())
}

func TestDeriveChangesWithAnyInputByte(t *testing.T) {
	d := testDeriver(t)
	owner := testIdentity(t)

	base := d.Derive(NamespaceProfile, owner)

	mutated := make([]byte, len(owner))
	copy(mutated, owner)
	mutated[0] ^= 0x01
	assert.NotEqual(t, base, d.Derive(NamespaceProfile, mutated))

	assert.NotEqual(t, base, d.Derive(NamespaceRecord, owner))
}

func TestDeriveNoSeedAliasing(t *testing.T) {
	d := testDeriver(t)

	// Length prefixing must keep ("ab","c") distinct from ("a","bc").
	a := d.Derive(NamespaceProfile, []byte("ab"), []byte("c"))
	b := d.Derive(NamespaceProfile, []byte("a"), []byte("bc"))
	assert.NotEqual(t, a, b)
}

func TestAdjacentDayIndexesDoNotCollide(t *testing.T) {
	d := testDeriver(t)
	owner := testIdentity(t)

	seen := make(map[Address]uint64)
	for day := uint64(20000); day < 20100; day++ {
		addr := d.DailyRecordAddress(owner, day)
		prev, dup := seen[addr]
		require.False(t, dup, "day %d collides with day %d", day, prev)
		seen[addr] = day
	}
}

func TestDifferentProgramsDeriveDifferentAddresses(t *testing.T) {
	owner := testIdentity(t)

	var progA, progB Address
	progA[0] = 1
	progB[0] = 2

	a := NewDeriver(progA).ProfileAddress(owner)
	b := NewDeriver(progB).ProfileAddress(owner)
	assert.NotEqual(t, a, b)
}

func TestDayIndex(t *testing.T) {
	assert.Equal(t, uint64(0), DayIndex(0))
	assert.Equal(t, uint64(0), DayIndex(86399))
	assert.Equal(t, uint64(1), DayIndex(86400))
	assert.Equal(t, uint64(19723), DayIndex(19723*86400+12345))
	assert.Equal(t, uint64(0), DayIndex(-1))
}

func TestAddressTextRoundTrip(t *testing.T) {
	d := testDeriver(t)
	addr := d.RegistryAddress()

	text, err := addr.MarshalText()
	require.NoError(t, err)

	var parsed Address
	require.NoError(t, parsed.UnmarshalText(text))
	assert.Equal(t, addr, parsed)
}

func TestParseRejectsBadInput(t *testing.T) {
	_, err := Parse("not-base58-!!!")
	assert.Error(t, err)

	_, err = Parse("abc") // valid base58, wrong length
	assert.Error(t, err)
}
