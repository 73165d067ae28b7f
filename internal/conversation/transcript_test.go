package conversation

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	base := time.Date(2024, 5, 10, 14, 3, 7, 123456789, time.UTC)
	tr := Transcript{
		NewAgentMessage("Hello from the packaging team", base),
		NewLeadMessage("Tell me more, \"quoted\" and unicode: ü", base.Add(time.Minute)),
		NewAgentMessage("", base.Add(2*time.Minute)),
	}

	b, err := tr.Encode()
	require.NoError(t, err)

	got, err := Decode(b)
	require.NoError(t, err)
	require.Len(t, got, len(tr))
	for i := range tr {
		assert.Equal(t, tr[i].Sender, got[i].Sender)
		assert.Equal(t, tr[i].Content, got[i].Content)
		assert.True(t, tr[i].Timestamp.Equal(got[i].Timestamp), "timestamp %d", i)
	}
}

func TestEncode_NilIsEmptyArray(t *testing.T) {
	b, err := Transcript(nil).Encode()
	require.NoError(t, err)
	assert.Equal(t, "[]", string(b))
}

func TestDecode_EmptyInputs(t *testing.T) {
	for _, in := range []string{"", "null", "[]"} {
		got, err := Decode([]byte(in))
		require.NoError(t, err, in)
		assert.NotNil(t, got, in)
		assert.Empty(t, got, in)
	}
}

func TestDecode_LegacyTimestampAndMissingFields(t *testing.T) {
	raw := `[{"sender":"agent","content":"hi","timestamp":"2024-05-10 14:03:07.123456"},{"sender":"lead"}]`

	got, err := Decode([]byte(raw))
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, time.Date(2024, 5, 10, 14, 3, 7, 123456000, time.UTC), got[0].Timestamp)
	assert.Equal(t, SenderLead, got[1].Sender)
	assert.Equal(t, "", got[1].Content)
	assert.True(t, got[1].Timestamp.IsZero())
}

func TestDecode_Malformed(t *testing.T) {
	_, err := Decode([]byte(`{"not":"a list"}`))
	assert.Error(t, err)

	_, err = Decode([]byte(`[{"sender":"lead","timestamp":"yesterday"}]`))
	assert.Error(t, err)
}

func TestAppend_DoesNotMutateReceiver(t *testing.T) {
	now := time.Now()
	base := make(Transcript, 1, 4)
	base[0] = NewAgentMessage("first", now)

	a, err := base.Append(NewLeadMessage("a", now))
	require.NoError(t, err)
	b, err := base.Append(NewLeadMessage("b", now))
	require.NoError(t, err)

	assert.Len(t, base, 1)
	assert.Equal(t, "a", a[1].Content)
	assert.Equal(t, "b", b[1].Content)
}

func TestAppend_RejectsUnknownSender(t *testing.T) {
	_, err := Transcript{}.Append(Message{Sender: "system", Content: "x"})
	assert.True(t, errors.Is(err, ErrInvalidSender))
}

func TestNextTimestamp_NeverGoesBackwards(t *testing.T) {
	last := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tr := Transcript{NewAgentMessage("x", last)}

	assert.Equal(t, last, tr.NextTimestamp(last.Add(-time.Hour)))
	assert.Equal(t, last.Add(time.Second), tr.NextTimestamp(last.Add(time.Second)))
	assert.Equal(t, last, Transcript{}.NextTimestamp(last))
}

func TestScan(t *testing.T) {
	var tr Transcript
	require.NoError(t, tr.Scan(nil))
	assert.NotNil(t, tr)
	assert.Empty(t, tr)

	require.NoError(t, tr.Scan(`[{"sender":"lead","content":"yo","timestamp":"2024-01-01T00:00:00Z"}]`))
	require.Len(t, tr, 1)
	assert.Equal(t, "yo", tr[0].Content)

	require.NoError(t, tr.Scan([]byte("")))
	assert.Empty(t, tr)

	assert.Error(t, tr.Scan(42))
}

func TestMetadataValidate(t *testing.T) {
	assert.NoError(t, Metadata{}.Validate())
	assert.NoError(t, Metadata{LastTransactionType: TransactionReceivedEmail}.Validate())
	assert.ErrorIs(t, Metadata{LastTransactionType: "fax"}.Validate(), ErrInvalidTransactionType)
}
