package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/samber/lo"

	"github.com/0x0BSoD/cryptonews/internal/model"
)

// ErrVectorUnsupported is returned by the embedding operations when the
// database has no pgvector extension or the embeddings column is missing.
var ErrVectorUnsupported = errors.New("pgvector is not available")

const articlesTable = "articles"

var articleColumns = []any{
	"id", "slug", "title", "content", "clean_content", "publishedat", "authorname",
	"category", "sourcename", "sourceurl", "imageurl", "articleurl", "tags",
	"createdat", "updatedat",
}

type ArticlePostgresStorage struct {
	db      *sqlx.DB
	dialect goqu.DialectWrapper
}

func NewArticleStorage(db *sqlx.DB) *ArticlePostgresStorage {
	return &ArticlePostgresStorage{
		db:      db,
		dialect: goqu.Dialect("postgres"),
	}
}

func (s *ArticlePostgresStorage) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM articles`); err != nil {
		return 0, fmt.Errorf("count articles: %w", err)
	}
	return count, nil
}

// Page returns one page of articles matching filter, newest first, together
// with the number of rows matching the filter overall.
func (s *ArticlePostgresStorage) Page(ctx context.Context, filter model.ArticleFilter) ([]model.Article, int64, error) {
	if filter.PageSize <= 0 {
		filter.PageSize = model.DefaultPageSize
	}

	base := s.filtered(filter)

	countSQL, countArgs, err := base.Select(goqu.COUNT(goqu.Star())).ToSQL()
	if err != nil {
		return nil, 0, fmt.Errorf("build count query: %w", err)
	}

	var total int64
	if err := s.db.GetContext(ctx, &total, countSQL, countArgs...); err != nil {
		return nil, 0, fmt.Errorf("count filtered articles: %w", err)
	}

	articles, err := s.list(ctx, base.
		Offset(uint(filter.Offset())).
		Limit(uint(filter.PageSize)))
	if err != nil {
		return nil, 0, err
	}

	return articles, total, nil
}

func (s *ArticlePostgresStorage) Latest(ctx context.Context, limit int) ([]model.Article, error) {
	return s.list(ctx, s.dialect.From(articlesTable).Limit(uint(limit)))
}

// SearchTitle does a case-insensitive substring match on title.
func (s *ArticlePostgresStorage) SearchTitle(ctx context.Context, query string, limit int) ([]model.Article, error) {
	return s.list(ctx, s.filtered(model.ArticleFilter{TitleQuery: query}).Limit(uint(limit)))
}

func (s *ArticlePostgresStorage) BySources(ctx context.Context, names []string, limit int) ([]model.Article, error) {
	return s.list(ctx, s.filtered(model.ArticleFilter{SourceNames: names}).Limit(uint(limit)))
}

func (s *ArticlePostgresStorage) Tables(ctx context.Context) ([]string, error) {
	var tables []string
	err := s.db.SelectContext(ctx, &tables, `
		SELECT table_name FROM information_schema.tables
		WHERE table_schema = 'public'
		ORDER BY table_name
	`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return tables, nil
}

// Store inserts article and reports whether a new row was created. An
// article already present under the same id has its content refreshed; one
// present under the same slug or title from the same source is skipped.
func (s *ArticlePostgresStorage) Store(ctx context.Context, article model.Article) (bool, error) {
	var duplicate bool
	err := s.db.GetContext(ctx, &duplicate, `
		SELECT EXISTS (
			SELECT 1 FROM articles
			WHERE id <> $1
			AND sourcename = $2
			AND ((slug <> '' AND slug = $3) OR title = $4)
		)
	`, article.ID, article.SourceName, article.Slug, article.Title)
	if err != nil {
		return false, fmt.Errorf("check duplicates: %w", err)
	}
	if duplicate {
		return false, nil
	}

	var inserted bool
	err = s.db.GetContext(ctx, &inserted, `
		INSERT INTO articles (
			id, slug, title, content, clean_content, publishedat, authorname,
			category, sourcename, sourceurl, imageurl, articleurl, tags, createdat
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			clean_content = EXCLUDED.clean_content,
			updatedat = CURRENT_TIMESTAMP
		RETURNING (xmax = 0)
	`,
		article.ID,
		article.Slug,
		article.Title,
		article.Content,
		article.CleanContent,
		article.PublishedAt,
		article.AuthorName,
		article.Category,
		article.SourceName,
		article.SourceURL,
		article.ImageURL,
		article.ArticleURL,
		pq.Array(lo.Ternary(article.Tags == nil, []string{}, article.Tags)),
		time.Now().UTC(),
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return false, nil
		}
		return false, fmt.Errorf("store article %s: %w", article.ID, err)
	}

	return inserted, nil
}

func (s *ArticlePostgresStorage) SetEmbedding(ctx context.Context, id string, embedding []float32) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE articles SET embeddings = $2::vector WHERE id = $1`,
		id, vectorLiteral(embedding),
	)
	return vectorErr(err)
}

// SemanticSearch returns the articles whose embeddings are closest to
// embedding by cosine distance.
func (s *ArticlePostgresStorage) SemanticSearch(ctx context.Context, embedding []float32, limit int) ([]model.Article, error) {
	query := fmt.Sprintf(`
		SELECT %s FROM articles
		WHERE embeddings IS NOT NULL
		ORDER BY embeddings <=> $1::vector
		LIMIT $2
	`, selectList())

	var rows []dbArticle
	if err := s.db.SelectContext(ctx, &rows, query, vectorLiteral(embedding), limit); err != nil {
		return nil, vectorErr(err)
	}

	return lo.Map(rows, func(r dbArticle, _ int) model.Article { return r.toModel() }), nil
}

func (s *ArticlePostgresStorage) filtered(filter model.ArticleFilter) *goqu.SelectDataset {
	ds := s.dialect.From(articlesTable).Prepared(true)

	names := lo.Uniq(lo.Compact(lo.Map(filter.SourceNames, func(n string, _ int) string {
		return strings.TrimSpace(n)
	})))
	if len(names) > 0 {
		ds = ds.Where(goqu.Or(lo.Map(names, func(n string, _ int) exp.Expression {
			return goqu.C("sourcename").Eq(n)
		})...))
	}

	if q := strings.TrimSpace(filter.TitleQuery); q != "" {
		ds = ds.Where(goqu.C("title").ILike("%" + escapeLike(q) + "%"))
	}

	if !filter.Since.IsZero() {
		ds = ds.Where(goqu.C("publishedat").Gte(filter.Since))
	}

	return ds
}

func (s *ArticlePostgresStorage) list(ctx context.Context, ds *goqu.SelectDataset) ([]model.Article, error) {
	query, args, err := ds.
		Prepared(true).
		Select(articleColumns...).
		Order(goqu.C("publishedat").Desc().NullsLast(), goqu.C("id").Asc()).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build articles query: %w", err)
	}

	var rows []dbArticle
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("select articles: %w", err)
	}

	return lo.Map(rows, func(r dbArticle, _ int) model.Article { return r.toModel() }), nil
}

type dbArticle struct {
	ID           string         `db:"id"`
	Slug         sql.NullString `db:"slug"`
	Title        sql.NullString `db:"title"`
	Content      sql.NullString `db:"content"`
	CleanContent sql.NullString `db:"clean_content"`
	PublishedAt  sql.NullTime   `db:"publishedat"`
	AuthorName   sql.NullString `db:"authorname"`
	Category     sql.NullString `db:"category"`
	SourceName   sql.NullString `db:"sourcename"`
	SourceURL    sql.NullString `db:"sourceurl"`
	ImageURL     sql.NullString `db:"imageurl"`
	ArticleURL   sql.NullString `db:"articleurl"`
	Tags         pq.StringArray `db:"tags"`
	CreatedAt    sql.NullTime   `db:"createdat"`
	UpdatedAt    sql.NullTime   `db:"updatedat"`
}

func (a dbArticle) toModel() model.Article {
	return model.Article{
		ID:           a.ID,
		Slug:         a.Slug.String,
		Title:        a.Title.String,
		Content:      a.Content.String,
		CleanContent: a.CleanContent.String,
		PublishedAt:  timePtr(a.PublishedAt),
		AuthorName:   a.AuthorName.String,
		Category:     a.Category.String,
		SourceName:   a.SourceName.String,
		SourceURL:    a.SourceURL.String,
		ImageURL:     a.ImageURL.String,
		ArticleURL:   a.ArticleURL.String,
		Tags:         []string(a.Tags),
		CreatedAt:    timePtr(a.CreatedAt),
		UpdatedAt:    timePtr(a.UpdatedAt),
	}
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}

func selectList() string {
	return strings.Join(lo.Map(articleColumns, func(c any, _ int) string { return c.(string) }), ", ")
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}

func vectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, f := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(f), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

// vectorErr maps "type vector does not exist" and "column embeddings does
// not exist" to ErrVectorUnsupported.
func vectorErr(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && (pqErr.Code == "42704" || pqErr.Code == "42703" || pqErr.Code == "42883") {
		return fmt.Errorf("%w: %s", ErrVectorUnsupported, pqErr.Message)
	}
	return err
}
