package main

import (
	"database/sql"
	"errors"
	"time"
)

// DB interface for database operations
type DB interface {
	Init() error
	// Token operations. GetAccessToken resolves the token together with its
	// application and user in one round trip; nil means no exact match.
	GetAccessToken(token string) (*TokenRecord, error)
	CreateAccessToken(token string, userID, applicationID *int64, expiresAt time.Time, scope string) error
	// Application operations
	GetApplicationByClientID(clientID string) (*Application, error)
	CreateApplication(clientID, clientSecretHash, clientType, name string) (*Application, error)
	// User operations
	CreateUser(username, passwordHash string) (*User, error)
	GetUserByUsername(username string) (*User, error)
}

// Memory DB
type MemDB struct {
	users  map[int64]*User
	apps   map[int64]*Application
	tokens map[string]*AccessToken
	seq    int64
}

func NewMemoryDB() *MemDB {
	return &MemDB{users: map[int64]*User{}, apps: map[int64]*Application{}, tokens: map[string]*AccessToken{}, seq: 1}
}

func (m *MemDB) Init() error { return nil }

func (m *MemDB) CreateUser(username, passwordHash string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return nil, errors.New("exists")
		}
	}
	u := &User{ID: m.seq, Username: username, Password: passwordHash, CreatedAt: time.Now()}
	m.seq++
	m.users[u.ID] = u
	return u, nil
}

func (m *MemDB) GetUserByUsername(username string) (*User, error) {
	for _, u := range m.users {
		if u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (m *MemDB) CreateApplication(clientID, clientSecretHash, clientType, name string) (*Application, error) {
	for _, a := range m.apps {
		if a.ClientID == clientID {
			return nil, errors.New("exists")
		}
	}
	a := &Application{ID: m.seq, ClientID: clientID, ClientSecret: clientSecretHash, ClientType: clientType, Name: name, CreatedAt: time.Now()}
	m.seq++
	m.apps[a.ID] = a
	return a, nil
}

func (m *MemDB) GetApplicationByClientID(clientID string) (*Application, error) {
	for _, a := range m.apps {
		if a.ClientID == clientID {
			return a, nil
		}
	}
	return nil, nil
}

func (m *MemDB) CreateAccessToken(token string, userID, applicationID *int64, expiresAt time.Time, scope string) error {
	if _, ok := m.tokens[token]; ok {
		return errors.New("exists")
	}
	m.tokens[token] = &AccessToken{Token: token, UserID: userID, ApplicationID: applicationID, ExpiresAt: expiresAt, Scope: scope, CreatedAt: time.Now()}
	return nil
}

func (m *MemDB) GetAccessToken(token string) (*TokenRecord, error) {
	t, ok := m.tokens[token]
	if !ok {
		return nil, nil
	}
	rec := &TokenRecord{Token: *t}
	if t.ApplicationID != nil {
		rec.Application = m.apps[*t.ApplicationID]
	}
	if t.UserID != nil {
		rec.User = m.users[*t.UserID]
	}
	return rec, nil
}

// SQLite DB
type SQLiteDB struct {
	db   *sql.DB
	path string
}

func NewSQLiteDB(path string) (*SQLiteDB, error) {
	d, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	s := &SQLiteDB{db: d, path: path}
	if err := s.Init(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *SQLiteDB) Init() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS users (id INTEGER PRIMARY KEY AUTOINCREMENT, username TEXT UNIQUE, password TEXT, created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS applications (id INTEGER PRIMARY KEY AUTOINCREMENT, client_id TEXT UNIQUE, client_secret TEXT, client_type TEXT, name TEXT, created_at TEXT);`,
		`CREATE TABLE IF NOT EXISTS access_tokens (token TEXT PRIMARY KEY, user_id INTEGER, application_id INTEGER, expires_at INTEGER, scope TEXT, created_at TEXT);`,
	}
	for _, q := range queries {
		if _, err := s.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteDB) CreateUser(username, passwordHash string) (*User, error) {
	res, err := s.db.Exec(`INSERT INTO users(username,password,created_at) VALUES(?,?,datetime('now'))`, username, passwordHash)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &User{ID: id, Username: username, Password: passwordHash}, nil
}

func (s *SQLiteDB) GetUserByUsername(username string) (*User, error) {
	row := s.db.QueryRow(`SELECT id,username,password FROM users WHERE username = ?`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Password); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (s *SQLiteDB) CreateApplication(clientID, clientSecretHash, clientType, name string) (*Application, error) {
	res, err := s.db.Exec(`INSERT INTO applications(client_id,client_secret,client_type,name,created_at) VALUES(?,?,?,?,datetime('now'))`, clientID, clientSecretHash, clientType, name)
	if err != nil {
		return nil, err
	}
	id, _ := res.LastInsertId()
	return &Application{ID: id, ClientID: clientID, ClientSecret: clientSecretHash, ClientType: clientType, Name: name}, nil
}

func (s *SQLiteDB) GetApplicationByClientID(clientID string) (*Application, error) {
	row := s.db.QueryRow(`SELECT id,client_id,client_secret,client_type,name FROM applications WHERE client_id = ?`, clientID)
	var a Application
	if err := row.Scan(&a.ID, &a.ClientID, &a.ClientSecret, &a.ClientType, &a.Name); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (s *SQLiteDB) CreateAccessToken(token string, userID, applicationID *int64, expiresAt time.Time, scope string) error {
	_, err := s.db.Exec(`INSERT INTO access_tokens(token,user_id,application_id,expires_at,scope,created_at) VALUES(?,?,?,?,?,datetime('now'))`, token, userID, applicationID, expiresAt.Unix(), scope)
	return err
}

func (s *SQLiteDB) GetAccessToken(token string) (*TokenRecord, error) {
	row := s.db.QueryRow(`
		SELECT t.token, t.user_id, t.application_id, t.expires_at, t.scope,
		       a.id, a.client_id, a.client_secret, a.client_type, a.name,
		       u.id, u.username
		FROM access_tokens t
		LEFT JOIN applications a ON t.application_id = a.id
		LEFT JOIN users u ON t.user_id = u.id
		WHERE t.token = ?`, token)

	var rec TokenRecord
	var userID, appID sql.NullInt64
	var expiresAt int64
	var joinedAppID, joinedUserID sql.NullInt64
	var clientID, clientSecret, clientType, appName, username sql.NullString
	err := row.Scan(&rec.Token.Token, &userID, &appID, &expiresAt, &rec.Token.Scope,
		&joinedAppID, &clientID, &clientSecret, &clientType, &appName,
		&joinedUserID, &username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	rec.Token.ExpiresAt = time.Unix(expiresAt, 0)
	if userID.Valid {
		rec.Token.UserID = &userID.Int64
	}
	if appID.Valid {
		rec.Token.ApplicationID = &appID.Int64
	}
	if joinedAppID.Valid {
		rec.Application = &Application{ID: joinedAppID.Int64, ClientID: clientID.String, ClientSecret: clientSecret.String, ClientType: clientType.String, Name: appName.String}
	}
	if joinedUserID.Valid {
		rec.User = &User{ID: joinedUserID.Int64, Username: username.String}
	}
	return &rec, nil
}

// lifecycle helpers
func (m *MemDB) close() error { return nil }
func (m *MemDB) ping() bool   { return true }

func (s *SQLiteDB) close() error { return s.db.Close() }
func (s *SQLiteDB) ping() bool   { return s.db.Ping() == nil }
