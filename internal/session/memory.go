package session

import (
	"context"
	"encoding/base32"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/allegro/bigcache/v3"
	"github.com/gin-contrib/sessions"
	"github.com/gorilla/securecookie"
	gsessions "github.com/gorilla/sessions"
)

// memoryStore はセッションの値をプロセス内の bigcache に置くストアです。
// 最後の保存から window を過ぎたセッションはキャッシュから取り除かれます。
type memoryStore struct {
	codecs  []securecookie.Codec
	options *gsessions.Options
	cache   *bigcache.BigCache
	encoder securecookie.GobEncoder
}

func newMemoryStore(window time.Duration, keyPairs ...[]byte) (*memoryStore, error) {
	cfg := bigcache.DefaultConfig(window)
	cfg.Shards = 64
	cfg.MaxEntriesInWindow = 64 * 256
	cfg.MaxEntrySize = 256
	cfg.Verbose = false

	cache, err := bigcache.New(context.Background(), cfg)
	if err != nil {
		return nil, err
	}
	return &memoryStore{
		codecs:  securecookie.CodecsFromPairs(keyPairs...),
		options: &gsessions.Options{Path: "/"},
		cache:   cache,
	}, nil
}

// Get はリクエスト単位のレジストリ経由でセッションを返します。
func (s *memoryStore) Get(r *http.Request, name string) (*gsessions.Session, error) {
	return gsessions.GetRegistry(r).Get(s, name)
}

// New はクッキーのIDに対応する値を読み込みます。見つからなければ新しいセッションです。
func (s *memoryStore) New(r *http.Request, name string) (*gsessions.Session, error) {
	session := gsessions.NewSession(s, name)
	options := *s.options
	session.Options = &options
	session.IsNew = true

	c, err := r.Cookie(name)
	if err != nil {
		return session, nil
	}
	if err := securecookie.DecodeMulti(name, c.Value, &session.ID, s.codecs...); err != nil {
		return session, err
	}

	data, err := s.cache.Get(session.ID)
	if err != nil {
		if errors.Is(err, bigcache.ErrEntryNotFound) {
			return session, nil
		}
		return session, err
	}
	if err := s.encoder.Deserialize(data, &session.Values); err != nil {
		return session, err
	}
	session.IsNew = false
	return session, nil
}

// Save は値をキャッシュに書き、IDだけをクッキーに載せます。MaxAge < 0 なら削除します。
func (s *memoryStore) Save(r *http.Request, w http.ResponseWriter, session *gsessions.Session) error {
	if session.Options.MaxAge < 0 {
		if session.ID != "" {
			if err := s.cache.Delete(session.ID); err != nil && !errors.Is(err, bigcache.ErrEntryNotFound) {
				return err
			}
		}
		for k := range session.Values {
			delete(session.Values, k)
		}
		http.SetCookie(w, gsessions.NewCookie(session.Name(), "", session.Options))
		return nil
	}

	if session.ID == "" {
		session.ID = strings.TrimRight(base32.StdEncoding.EncodeToString(securecookie.GenerateRandomKey(32)), "=")
	}
	encoded, err := securecookie.EncodeMulti(session.Name(), session.ID, s.codecs...)
	if err != nil {
		return err
	}
	data, err := s.encoder.Serialize(session.Values)
	if err != nil {
		return err
	}
	if err := s.cache.Set(session.ID, data); err != nil {
		return err
	}
	http.SetCookie(w, gsessions.NewCookie(session.Name(), encoded, session.Options))
	return nil
}

// Options はクッキーの属性を設定します。
func (s *memoryStore) Options(options sessions.Options) {
	s.options = options.ToGorillaOptions()
	for _, codec := range s.codecs {
		if sc, ok := codec.(*securecookie.SecureCookie); ok {
			sc.MaxAge(options.MaxAge)
		}
	}
}

// Len はキャッシュに残っているセッション数を返します。
func (s *memoryStore) Len() int {
	return s.cache.Len()
}
