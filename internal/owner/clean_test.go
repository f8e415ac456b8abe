package owner

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlaceholderEmail(t *testing.T) {
	assert.True(t, IsPlaceholderEmail(""))
	assert.True(t, IsPlaceholderEmail("support@hotpads.com"))
	assert.True(t, IsPlaceholderEmail("Noreply@Zillow.com"))
	assert.True(t, IsPlaceholderEmail("anything@redfin.com"))
	assert.False(t, IsPlaceholderEmail("jane@example.com"))
	assert.False(t, IsPlaceholderEmail("redfin.com.fan@gmail.com"))
}

func TestIsPlaceholderPhone(t *testing.T) {
	assert.True(t, IsPlaceholderPhone(""))
	assert.True(t, IsPlaceholderPhone("000-000-0000"))
	assert.True(t, IsPlaceholderPhone("(111) 111-1111"))
	assert.True(t, IsPlaceholderPhone("123-456-7890"))
	assert.True(t, IsPlaceholderPhone("5555555555"))
	assert.False(t, IsPlaceholderPhone("217-555-0100"))
	// Short repeated digits are not flagged; only 10+ digit repeats are fakes.
	assert.False(t, IsPlaceholderPhone("555-5555"))
}

func TestIsValidOwnerName(t *testing.T) {
	assert.False(t, IsValidOwnerName(""))
	assert.False(t, IsValidOwnerName("Support"))
	assert.False(t, IsValidOwnerName("  Leasing Office "))
	assert.False(t, IsValidOwnerName("PROPERTY MANAGER"))
	assert.True(t, IsValidOwnerName("Jane Doe"))
}

func TestClean(t *testing.T) {
	name, email, phone := Clean("Support", "support@hotpads.com", "000-000-0000")
	assert.Empty(t, name)
	assert.Empty(t, email)
	assert.Empty(t, phone)

	name, email, phone = Clean("Jane Doe", "jane@example.com", "217-555-0100")
	assert.Equal(t, "Jane Doe", name)
	assert.Equal(t, "jane@example.com", email)
	assert.Equal(t, "217-555-0100", phone)
}

func TestIsComplete(t *testing.T) {
	complete, missing := IsComplete("Jane Doe", "jane@example.com", "217-555-0100", "PO Box 1, Springfield IL")
	assert.True(t, complete)
	for field, miss := range missing {
		assert.False(t, miss, field)
	}

	// Missing mailing address alone blocks completeness.
	complete, missing = IsComplete("Jane Doe", "jane@example.com", "217-555-0100", "")
	assert.False(t, complete)
	assert.True(t, missing["mailing_address"])
	assert.False(t, missing["owner_name"])

	// Placeholder fields count as missing.
	complete, missing = IsComplete("Support", "jane@example.com", "217-555-0100", "PO Box 1")
	assert.False(t, complete)
	assert.True(t, missing["owner_name"])

	// "null" mailing address is not a mailing address.
	complete, _ = IsComplete("Jane Doe", "jane@example.com", "217-555-0100", "null")
	assert.False(t, complete)
}
