package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	db          *pgxpool.Pool
	secretHdr   = getenv("WEBHOOK_HEADER_NAME", "X-AFKMUTE-SECRET")
	secretValue = os.Getenv("WEBHOOK_HEADER_VALUE")
)

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func init() {
	// sin DATABASE_URL respondemos 503
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		fmt.Println("DATABASE_URL empty; running without DB")
		return
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		fmt.Println("pgx ParseConfig:", err)
		return
	}
	cfg.MaxConns = 4
	cfg.MaxConnLifetime = 30 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		fmt.Println("pgxpool New:", err)
		return
	}
	db = pool
}

// readSecret busca el header sin importar mayúsculas (API Gateway v2 los manda en minúscula).
func readSecret(headers map[string]string) string {
	want := strings.ToLower(secretHdr)
	for k, v := range headers {
		if strings.ToLower(k) == want {
			return v
		}
	}
	return ""
}

type afkMute struct {
	UserID    string    `json:"user_id"`
	MuterID   string    `json:"muter_id"`
	CreatedAt time.Time `json:"created_at"`
}

type listResponse struct {
	GuildID string    `json:"guild_id"`
	Count   int       `json:"count"`
	Mutes   []afkMute `json:"mutes"`
}

// querier es lo que usamos del pool; en tests se reemplaza.
type querier interface {
	listAfkMutes(ctx context.Context, guildID string) ([]afkMute, error)
}

type poolQuerier struct{ db *pgxpool.Pool }

func (q poolQuerier) listAfkMutes(ctx context.Context, guildID string) ([]afkMute, error) {
	rows, err := q.db.Query(ctx, `
SELECT user_id, muter_id, created_at
FROM afk_mutes
WHERE guild_id = $1
ORDER BY created_at, user_id`, guildID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []afkMute{}
	for rows.Next() {
		var m afkMute
		if err := rows.Scan(&m.UserID, &m.MuterID, &m.CreatedAt); err != nil {
			return nil, err
		}
		m.CreatedAt = m.CreatedAt.UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}

func respond(status int, body string) events.APIGatewayV2HTTPResponse {
	return events.APIGatewayV2HTTPResponse{
		StatusCode: status,
		Headers:    map[string]string{"Content-Type": "application/json"},
		Body:       body,
	}
}

func serve(ctx context.Context, q querier, req events.APIGatewayV2HTTPRequest) events.APIGatewayV2HTTPResponse {
	fmt.Printf("afkstatus hit | path=%s method=%s ip=%s\n",
		req.RawPath, req.RequestContext.HTTP.Method, req.RequestContext.HTTP.SourceIP)

	if m := req.RequestContext.HTTP.Method; m != "" && m != http.MethodGet {
		return respond(http.StatusMethodNotAllowed, `{"error":"method not allowed"}`)
	}
	got := readSecret(req.Headers)
	if secretValue == "" || subtle.ConstantTimeCompare([]byte(got), []byte(secretValue)) != 1 {
		fmt.Println("auth: unauthorized (missing/invalid secret)")
		return respond(http.StatusUnauthorized, `{"error":"unauthorized"}`)
	}
	guildID := strings.TrimSpace(req.QueryStringParameters["guild_id"])
	if guildID == "" {
		return respond(http.StatusBadRequest, `{"error":"guild_id is required"}`)
	}
	if q == nil {
		return respond(http.StatusServiceUnavailable, `{"error":"no database"}`)
	}

	qctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	mutes, err := q.listAfkMutes(qctx, guildID)
	if err != nil {
		fmt.Println("list afk_mutes:", err)
		return respond(http.StatusInternalServerError, `{"error":"query failed"}`)
	}

	b, err := json.Marshal(listResponse{GuildID: guildID, Count: len(mutes), Mutes: mutes})
	if err != nil {
		return respond(http.StatusInternalServerError, `{"error":"encode failed"}`)
	}
	return respond(http.StatusOK, string(b))
}

func handler(ctx context.Context, req events.APIGatewayV2HTTPRequest) (events.APIGatewayV2HTTPResponse, error) {
	var q querier
	if db != nil {
		q = poolQuerier{db: db}
	}
	return serve(ctx, q, req), nil
}

func main() { lambda.Start(handler) }
