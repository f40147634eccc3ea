package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewUserContext_KnownUsers(t *testing.T) {
	tests := []struct {
		name        string
		wantRole    Role
		wantPremium bool
	}{
		{"John Smith", RoleAdmin, true},
		{"Alice Johnson", RoleDeveloper, true},
		{"Bob Wilson", RoleSupport, true},
		{"Emma Davis", RoleSales, true},
		{"Stranger", RoleChatUser, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := NewUserContext(tt.name)
			assert.Equal(t, tt.wantRole, u.Role)
			assert.Equal(t, tt.wantPremium, u.IsPremium)
			assert.NotEmpty(t, u.UserID)
			assert.True(t, u.FirstInteraction())
		})
	}
}

func TestUserContext_UserID(t *testing.T) {
	u := NewUserContext("John Smith")
	assert.Equal(t, "user_john_smith", u.UserID)
}

func TestUserContext_Touch(t *testing.T) {
	u := NewUserContext("Bob Wilson")
	u.Touch()
	assert.False(t, u.FirstInteraction())
	assert.WithinDuration(t, u.LastInteraction, u.LastInteraction, 0)
}

func TestGreeting_CoversEveryRole(t *testing.T) {
	for _, role := range []Role{RoleAdmin, RoleDeveloper, RoleSupport, RoleSales, RoleChatUser} {
		u := &UserContext{UserName: "Pat", Role: role}
		greeting := u.Greeting()
		assert.Contains(t, greeting, "Pat", "role %s greeting must address the user", role)
		assert.NotEqual(t, "Hello Pat!", greeting, "role %s fell through to the fallback arm", role)
	}
}

func TestHistory_AppendDoesNotMutate(t *testing.T) {
	h := History{{Query: "q1", Response: "r1"}}
	h2 := h.Append("q2", "r2")

	assert.Len(t, h, 1)
	assert.Len(t, h2, 2)
	assert.Equal(t, "q2", h2[1].Query)
}

func TestDispatchDecision_Kinds(t *testing.T) {
	assert.Equal(t, KindDecline, Decline().Kind())

	d := DelegateToDomain("product", "warranty?")
	assert.Equal(t, KindDelegate, d.Kind())
	assert.Equal(t, "product", d.DomainID)
	assert.Equal(t, "warranty?", d.Query)

	tr := TransferTo("notification", "Bob")
	assert.Equal(t, KindTransfer, tr.Kind())
	assert.Equal(t, "notification", tr.ResponderID)
}

func TestOutcome_States(t *testing.T) {
	ok := Ok("answer")
	assert.True(t, ok.IsOk())
	assert.False(t, ok.IsRefused())
	assert.Equal(t, "answer", ok.Text())

	ref := Refused("asks for code generation")
	assert.True(t, ref.IsRefused())
	assert.False(t, ref.IsOk())
	assert.Equal(t, "asks for code generation", ref.Reason())

	failed := Failed(FailureStoreUnavailable, ErrStoreUnavailable)
	assert.True(t, failed.IsFailed())
	assert.Equal(t, FailureStoreUnavailable, failed.FailureKind())
	assert.ErrorIs(t, failed.Err(), ErrStoreUnavailable)
}
