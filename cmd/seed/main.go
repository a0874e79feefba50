package main

import (
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"fmt"
	"log"
	"time"

	"github.com/example/introspectd/internal/config"
	_ "github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"
	_ "modernc.org/sqlite"
)

// Seeds a demo client application, user, and access tokens so the
// introspection endpoint can be exercised locally. Secrets are printed once
// and stored only as bcrypt hashes.
func main() {
	cfg, err := config.New()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	clientSecret := mustToken(24)
	resourceServerToken := mustToken(24)
	userToken := mustToken(24)
	password := mustToken(12)

	secretHash, err := bcrypt.GenerateFromPassword([]byte(clientSecret), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash client secret: %v", err)
	}
	passwordHash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("hash password: %v", err)
	}

	expires := time.Now().Add(24 * time.Hour)

	switch cfg.DBAdapter {
	case "postgres":
		dsn, err := cfg.BuildPostgresDSN()
		if err != nil {
			log.Fatalf("postgres config error: %v", err)
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			log.Fatalf("postgres open: %v", err)
		}
		defer db.Close()
		seedPostgres(db, string(secretHash), string(passwordHash), resourceServerToken, userToken, expires, cfg.IntrospectionScope)
	case "sqlite":
		db, err := sql.Open("sqlite", cfg.SQLiteFile)
		if err != nil {
			log.Fatalf("sqlite open: %v", err)
		}
		defer db.Close()
		seedSQLite(db, string(secretHash), string(passwordHash), resourceServerToken, userToken, expires, cfg.IntrospectionScope)
	default:
		log.Fatalf("seeding requires DB_ADAPTER=postgres or sqlite, got %s", cfg.DBAdapter)
	}

	fmt.Println("Seeded demo data (store these now, they are not recoverable):")
	fmt.Printf("  client_id:             demo-client\n")
	fmt.Printf("  client_secret:         %s\n", clientSecret)
	fmt.Printf("  username:              demo-user (password %s)\n", password)
	fmt.Printf("  resource server token: %s (scope %q)\n", resourceServerToken, cfg.IntrospectionScope)
	fmt.Printf("  user access token:     %s (scope \"read write\")\n", userToken)
}

func seedPostgres(db *sql.DB, secretHash, passwordHash, rsToken, userToken string, expires time.Time, introspectionScope string) {
	var appID, userID int64
	err := db.QueryRow(`INSERT INTO applications(client_id,client_secret,client_type,name,created_at) VALUES($1,$2,$3,$4,now()) RETURNING id`,
		"demo-client", secretHash, "confidential", "Demo Application").Scan(&appID)
	if err != nil {
		log.Fatalf("insert application: %v", err)
	}
	err = db.QueryRow(`INSERT INTO users(username,password,created_at) VALUES($1,$2,now()) RETURNING id`,
		"demo-user", passwordHash).Scan(&userID)
	if err != nil {
		log.Fatalf("insert user: %v", err)
	}
	_, err = db.Exec(`INSERT INTO access_tokens(token,user_id,application_id,expires_at,scope,created_at) VALUES($1,NULL,$2,$3,$4,now())`,
		rsToken, appID, expires, introspectionScope)
	if err != nil {
		log.Fatalf("insert resource server token: %v", err)
	}
	_, err = db.Exec(`INSERT INTO access_tokens(token,user_id,application_id,expires_at,scope,created_at) VALUES($1,$2,$3,$4,$5,now())`,
		userToken, userID, appID, expires, "read write")
	if err != nil {
		log.Fatalf("insert user token: %v", err)
	}
}

func seedSQLite(db *sql.DB, secretHash, passwordHash, rsToken, userToken string, expires time.Time, introspectionScope string) {
	res, err := db.Exec(`INSERT INTO applications(client_id,client_secret,client_type,name,created_at) VALUES(?,?,?,?,datetime('now'))`,
		"demo-client", secretHash, "confidential", "Demo Application")
	if err != nil {
		log.Fatalf("insert application: %v", err)
	}
	appID, _ := res.LastInsertId()
	res, err = db.Exec(`INSERT INTO users(username,password,created_at) VALUES(?,?,datetime('now'))`,
		"demo-user", passwordHash)
	if err != nil {
		log.Fatalf("insert user: %v", err)
	}
	userID, _ := res.LastInsertId()
	_, err = db.Exec(`INSERT INTO access_tokens(token,user_id,application_id,expires_at,scope,created_at) VALUES(?,NULL,?,?,?,datetime('now'))`,
		rsToken, appID, expires.Unix(), introspectionScope)
	if err != nil {
		log.Fatalf("insert resource server token: %v", err)
	}
	_, err = db.Exec(`INSERT INTO access_tokens(token,user_id,application_id,expires_at,scope,created_at) VALUES(?,?,?,?,?,datetime('now'))`,
		userToken, userID, appID, expires.Unix(), "read write")
	if err != nil {
		log.Fatalf("insert user token: %v", err)
	}
}

func mustToken(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		log.Fatalf("rand: %v", err)
	}
	return hex.EncodeToString(b)
}
