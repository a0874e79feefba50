package main

import (
	"database/sql"
	"time"

	_ "github.com/lib/pq"
)

type PostgresDB struct {
	db  *sql.DB
	dsn string
}

func NewPostgresDB(dsn string) (*PostgresDB, error) {
	d, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	p := &PostgresDB{db: d, dsn: dsn}
	if err := p.Init(); err != nil {
		d.Close()
		return nil, err
	}
	return p, nil
}

func (p *PostgresDB) Init() error {
	// rely on migrations to create tables; just verify connectivity
	if err := p.db.Ping(); err != nil {
		return err
	}
	return nil
}

func (p *PostgresDB) CreateUser(username, passwordHash string) (*User, error) {
	var id int64
	err := p.db.QueryRow(`INSERT INTO users(username,password,created_at) VALUES($1,$2,now()) RETURNING id`, username, passwordHash).Scan(&id)
	if err != nil {
		// unique violation
		return nil, err
	}
	return &User{ID: id, Username: username, Password: passwordHash}, nil
}

func (p *PostgresDB) GetUserByUsername(username string) (*User, error) {
	row := p.db.QueryRow(`SELECT id,username,password,created_at FROM users WHERE username = $1`, username)
	var u User
	if err := row.Scan(&u.ID, &u.Username, &u.Password, &u.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

func (p *PostgresDB) CreateApplication(clientID, clientSecretHash, clientType, name string) (*Application, error) {
	var id int64
	err := p.db.QueryRow(`INSERT INTO applications(client_id,client_secret,client_type,name,created_at) VALUES($1,$2,$3,$4,now()) RETURNING id`, clientID, clientSecretHash, clientType, name).Scan(&id)
	if err != nil {
		return nil, err
	}
	return &Application{ID: id, ClientID: clientID, ClientSecret: clientSecretHash, ClientType: clientType, Name: name}, nil
}

func (p *PostgresDB) GetApplicationByClientID(clientID string) (*Application, error) {
	row := p.db.QueryRow(`SELECT id,client_id,client_secret,client_type,name,created_at FROM applications WHERE client_id = $1`, clientID)
	var a Application
	if err := row.Scan(&a.ID, &a.ClientID, &a.ClientSecret, &a.ClientType, &a.Name, &a.CreatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &a, nil
}

func (p *PostgresDB) CreateAccessToken(token string, userID, applicationID *int64, expiresAt time.Time, scope string) error {
	_, err := p.db.Exec(`INSERT INTO access_tokens(token,user_id,application_id,expires_at,scope,created_at) VALUES($1,$2,$3,$4,$5,now())`, token, userID, applicationID, expiresAt, scope)
	return err
}

func (p *PostgresDB) GetAccessToken(token string) (*TokenRecord, error) {
	row := p.db.QueryRow(`
		SELECT t.token, t.user_id, t.application_id, t.expires_at, t.scope,
		       a.id, a.client_id, a.client_secret, a.client_type, a.name,
		       u.id, u.username
		FROM access_tokens t
		LEFT JOIN applications a ON t.application_id = a.id
		LEFT JOIN users u ON t.user_id = u.id
		WHERE t.token = $1`, token)

	var rec TokenRecord
	var userID, appID sql.NullInt64
	var joinedAppID, joinedUserID sql.NullInt64
	var clientID, clientSecret, clientType, appName, username sql.NullString
	err := row.Scan(&rec.Token.Token, &userID, &appID, &rec.Token.ExpiresAt, &rec.Token.Scope,
		&joinedAppID, &clientID, &clientSecret, &clientType, &appName,
		&joinedUserID, &username)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
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

func (p *PostgresDB) close() error { return p.db.Close() }
func (p *PostgresDB) ping() bool   { return p.db.Ping() == nil }
