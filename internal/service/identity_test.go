package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mindwell-dev/mindwell/internal/domain"
)

func TestSyntheticLabel(t *testing.T) {
	anon := domain.ThreadMetadata{Id: "aaaa-bbbb-ccccc", Anonymous: true}
	unclaimed := domain.ThreadMetadata{Id: "aaaa-bbbb-ccccc"}
	claimed := domain.ThreadMetadata{Id: "aaaa-bbbb-ccccc", OwnerCounselor: owned("c-1")}

	assert.Equal(t, "Anonymous Student (T-ccccc)", SyntheticLabel(&anon))
	assert.Equal(t, "New Student (T-ccccc)", SyntheticLabel(&unclaimed))
	assert.Equal(t, "Student (T-ccccc)", SyntheticLabel(&claimed))
}

func TestIdentityTiers(t *testing.T) {
	resolver := newTestResolver()
	metadata := domain.ThreadMetadata{
		Id:             "t-1",
		StudentRef:     "stu-1",
		OwnerCounselor: owned("c-1"),
		Status:         domain.StatusOpen,
		UnreadCounts:   map[domain.ParticipantRef]int{"stu-1": 2, "c-1": 5},
	}

	t.Run("owning counselor sees directory identity", func(t *testing.T) {
		view, err := resolver.View(metadata, nil, counselor("c-1"))

		require.NoError(t, err)
		require.NotNil(t, view.Student)
		assert.Equal(t, "Jordan Rivera", view.Student.DisplayName)
		assert.Equal(t, "S-2023-1001", view.Student.StudentNumber)
	})

	t.Run("non-owner counselor sees synthetic label only", func(t *testing.T) {
		view, err := resolver.View(metadata, nil, counselor("c-2"))

		require.NoError(t, err)
		assert.Nil(t, view.Student)
		assert.Empty(t, view.StudentRef)
		assert.NotEmpty(t, view.StudentLabel)
	})

	t.Run("anonymous thread hides identity from its owner", func(t *testing.T) {
		anonMeta := metadata
		anonMeta.Anonymous = true

		view, err := resolver.View(anonMeta, nil, counselor("c-1"))

		require.NoError(t, err)
		assert.Nil(t, view.Student)
		assert.Empty(t, view.StudentRef)
	})

	t.Run("directory miss degrades to hidden tier", func(t *testing.T) {
		missMeta := metadata
		missMeta.StudentRef = "stu-unknown"
		missMeta.OwnerCounselor = owned("c-1")

		view, err := resolver.View(missMeta, nil, counselor("c-1"))

		require.NoError(t, err)
		assert.Nil(t, view.Student)
	})

	t.Run("student view carries claim state but no counselor ref", func(t *testing.T) {
		view, err := resolver.View(metadata, nil, student("stu-1"))

		require.NoError(t, err)
		assert.True(t, view.Claimed)
		assert.Nil(t, view.OwnerCounselor)

		raw, err := json.Marshal(view)
		require.NoError(t, err)
		assert.NotContains(t, string(raw), "c-1")
	})

	t.Run("counselor views keep the owner ref", func(t *testing.T) {
		view, err := resolver.View(metadata, nil, counselor("c-2"))

		require.NoError(t, err)
		require.NotNil(t, view.OwnerCounselor)
		assert.EqualValues(t, "c-1", *view.OwnerCounselor)
	})

	t.Run("viewer sees only own unread counter", func(t *testing.T) {
		view, err := resolver.View(metadata, nil, counselor("c-1"))

		require.NoError(t, err)
		assert.Equal(t, map[domain.ParticipantRef]int{"c-1": 5}, view.UnreadCounts)
	})
}

func TestRedactMessages(t *testing.T) {
	metadata := domain.ThreadMetadata{
		Id:             "t-1",
		StudentRef:     "stu-1",
		OwnerCounselor: owned("c-1"),
		Status:         domain.StatusOpen,
	}
	messages := []*domain.Message{
		{Id: 1, Role: domain.RoleStudent, SenderRef: "stu-1", Text: "hi", ClientCorrelationId: "corr-stu"},
		{Id: 2, Role: domain.RoleCounselor, SenderRef: "c-1", Text: "hello", ClientCorrelationId: "corr-c"},
	}

	t.Run("student never sees counselor refs", func(t *testing.T) {
		redacted := redactMessages(messages, &metadata, student("stu-1"))

		assert.Equal(t, "stu-1", redacted[0].SenderRef)
		assert.Equal(t, "corr-stu", redacted[0].ClientCorrelationId)
		assert.Empty(t, redacted[1].SenderRef)
		assert.Empty(t, redacted[1].ClientCorrelationId)
	})

	t.Run("non-owner counselor sees no student ref", func(t *testing.T) {
		redacted := redactMessages(messages, &metadata, counselor("c-2"))

		assert.Empty(t, redacted[0].SenderRef)
		assert.Empty(t, redacted[0].ClientCorrelationId)
	})

	t.Run("owner counselor sees student ref", func(t *testing.T) {
		redacted := redactMessages(messages, &metadata, counselor("c-1"))

		assert.Equal(t, "stu-1", redacted[0].SenderRef)
		assert.Equal(t, "c-1", redacted[1].SenderRef)
		assert.Equal(t, "corr-c", redacted[1].ClientCorrelationId)
	})

	t.Run("originals are not mutated", func(t *testing.T) {
		_ = redactMessages(messages, &metadata, student("stu-1"))

		assert.Equal(t, "c-1", messages[1].SenderRef)
	})
}
