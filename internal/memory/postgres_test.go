package memory

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresStoreRoundTrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := pgxpool.New(ctx, url)
	require.NoError(t, err)
	defer pool.Close()
	s, err := NewPostgresStore(ctx, pool)
	require.NoError(t, err)

	ns := UserNamespace("pg-" + uuid.NewString())
	defer s.Clear(ctx, ns)

	_, err = s.Put(ctx, ns, Fact{Text: "사용자 질문: iPhone 15", Subject: "iPhone 15"})
	require.NoError(t, err)
	_, err = s.Put(ctx, ns, Fact{Text: "관심", Category: "Galaxy"})
	require.NoError(t, err)
	_, err = s.Put(ctx, ns, Fact{Text: "사용자 질문: 캠핑 의자", Subject: "캠핑 의자"})
	require.NoError(t, err)

	all, err := s.Search(ctx, ns, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Less(t, all[0].Seq, all[1].Seq)

	got, err := s.Search(ctx, ns, "iphone 가격")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "사용자 질문: iPhone 15", got[0].Text)

	got, err = s.Search(ctx, ns, "galaxy 100%")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Galaxy", got[0].Category)

	got, err = s.Search(ctx, ns, "사용자 리뷰 좋은 이어폰")
	require.NoError(t, err)
	assert.Empty(t, got)

	n, err := s.Clear(ctx, ns)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Close())
	require.NoError(t, pool.Ping(ctx), "closing the store must leave the shared pool open")
}
