package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"feedpipe/internal/domain"

	"github.com/google/uuid"
)

const articleColumns = "id, feed_id, link, title, published_at, author, excerpt, favorite, created_at"

type rowScanner interface {
	Scan(dest ...any) error
}

// InsertArticleIfAbsent stores the item unless the feed already has an article with the
// same link. Losing that race returns domain.ErrDuplicateIgnored.
func (d *Database) InsertArticleIfAbsent(
	ctx context.Context,
	feedID string,
	item domain.Item,
) (*domain.Article, error) {
	link := strings.TrimSpace(item.Link)
	if link == "" {
		return nil, fmt.Errorf("%w: article link is empty", domain.ErrInvalidInput)
	}

	article := domain.Article{
		ID:        uuid.NewString(),
		FeedID:    feedID,
		Link:      link,
		Title:     item.Title,
		Published: item.Published.UTC(),
		Author:    item.Author,
		Excerpt:   item.Excerpt,
		CreatedAt: time.Now().UTC(),
	}

	query := `insert into articles (id, feed_id, link, title, published_at, author, excerpt, favorite, created_at)
	values (?, ?, ?, ?, ?, ?, ?, 0, ?)
	on conflict (feed_id, link) do nothing`

	res, err := d.db.ExecContext(
		ctx,
		query,
		article.ID,
		article.FeedID,
		article.Link,
		article.Title,
		article.Published,
		article.Author,
		article.Excerpt,
		article.CreatedAt,
	)
	if err != nil {
		return nil, storageError("insert article", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageError("count inserted articles", err)
	}

	if affected == 0 {
		return nil, fmt.Errorf("%w: feed %q link %q", domain.ErrDuplicateIgnored, feedID, link)
	}

	return &article, nil
}

func (d *Database) ExistingLinks(ctx context.Context, feedID string) (map[string]struct{}, error) {
	rows, err := d.db.QueryContext(ctx, "select link from articles where feed_id = ?", feedID)
	if err != nil {
		return nil, storageError("query article links", err)
	}
	defer d.closeRows(ctx, rows, "ExistingLinks")

	links := make(map[string]struct{})
	for rows.Next() {
		var link string
		if err = rows.Scan(&link); err != nil {
			return nil, storageError("scan article link", err)
		}

		links[link] = struct{}{}
	}

	if err = rows.Err(); err != nil {
		return nil, storageError("iterate article links", err)
	}

	return links, nil
}

// GetArticlesByFeeds returns articles of the given feeds, newest first.
func (d *Database) GetArticlesByFeeds(ctx context.Context, feedIDs []string) ([]domain.Article, error) {
	if len(feedIDs) == 0 {
		return []domain.Article{}, nil
	}

	args := make([]any, len(feedIDs))
	for i, id := range feedIDs {
		args[i] = id
	}

	query := fmt.Sprintf(`select %s
	from articles
	where feed_id in (%s)
	order by published_at desc, created_at desc, id`, articleColumns, placeholders(len(feedIDs)))

	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageError("query articles", err)
	}
	defer d.closeRows(ctx, rows, "GetArticlesByFeeds")

	articles := []domain.Article{}
	for rows.Next() {
		a, scanErr := scanArticle(rows)
		if scanErr != nil {
			return nil, storageError("scan article", scanErr)
		}

		articles = append(articles, *a)
	}

	if err = rows.Err(); err != nil {
		return nil, storageError("iterate articles", err)
	}

	readers, err := d.readers(
		ctx,
		d.db,
		fmt.Sprintf("where article_id in (select id from articles where feed_id in (%s))", placeholders(len(feedIDs))),
		args...,
	)
	if err != nil {
		return nil, err
	}

	for i := range articles {
		if userIDs, ok := readers[articles[i].ID]; ok {
			articles[i].ReadBy = userIDs
		}
	}

	return articles, nil
}

func (d *Database) GetArticle(ctx context.Context, articleID string) (*domain.Article, error) {
	return d.getArticle(ctx, d.db, articleID)
}

// MarkArticleRead adds userID to the read-by set. Marking twice is a no-op.
func (d *Database) MarkArticleRead(
	ctx context.Context,
	articleID string,
	userID string,
) (*domain.Article, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin transaction", err)
	}
	defer d.rollback(ctx, tx, "MarkArticleRead")

	if err = articleExists(ctx, tx, articleID); err != nil {
		return nil, err
	}

	if _, err = tx.ExecContext(
		ctx,
		"insert or ignore into article_reads (article_id, user_id, read_at) values (?, ?, ?)",
		articleID,
		userID,
		time.Now().UTC(),
	); err != nil {
		return nil, storageError("insert article read", err)
	}

	article, err := d.getArticle(ctx, tx, articleID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, storageError("commit transaction", err)
	}

	return article, nil
}

// ToggleArticleFavorite flips the favorite flag shared by every reader of the article.
func (d *Database) ToggleArticleFavorite(ctx context.Context, articleID string) (*domain.Article, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, storageError("begin transaction", err)
	}
	defer d.rollback(ctx, tx, "ToggleArticleFavorite")

	res, err := tx.ExecContext(ctx, "update articles set favorite = 1 - favorite where id = ?", articleID)
	if err != nil {
		return nil, storageError("toggle favorite", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, storageError("count toggled articles", err)
	}

	if affected == 0 {
		return nil, fmt.Errorf("%w: article %q", domain.ErrNotFound, articleID)
	}

	article, err := d.getArticle(ctx, tx, articleID)
	if err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		return nil, storageError("commit transaction", err)
	}

	return article, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func articleExists(ctx context.Context, q querier, articleID string) error {
	var one int

	err := q.QueryRowContext(ctx, "select 1 from articles where id = ?", articleID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: article %q", domain.ErrNotFound, articleID)
	}
	if err != nil {
		return storageError("check article", err)
	}

	return nil
}

func (d *Database) getArticle(ctx context.Context, q querier, articleID string) (*domain.Article, error) {
	row := q.QueryRowContext(ctx, "select "+articleColumns+" from articles where id = ?", articleID)

	article, err := scanArticle(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: article %q", domain.ErrNotFound, articleID)
	}
	if err != nil {
		return nil, storageError("get article", err)
	}

	readers, err := d.readers(ctx, q, "where article_id = ?", articleID)
	if err != nil {
		return nil, err
	}
	if userIDs, ok := readers[article.ID]; ok {
		article.ReadBy = userIDs
	}

	return article, nil
}

func (d *Database) readers(
	ctx context.Context,
	q querier,
	where string,
	args ...any,
) (map[string][]string, error) {
	rows, err := q.QueryContext(ctx, "select article_id, user_id from article_reads "+where+" order by user_id", args...)
	if err != nil {
		return nil, storageError("query article reads", err)
	}
	defer d.closeRows(ctx, rows, "readers")

	readers := make(map[string][]string)
	for rows.Next() {
		var articleID, userID string
		if err = rows.Scan(&articleID, &userID); err != nil {
			return nil, storageError("scan article read", err)
		}

		readers[articleID] = append(readers[articleID], userID)
	}

	if err = rows.Err(); err != nil {
		return nil, storageError("iterate article reads", err)
	}

	return readers, nil
}

func scanArticle(row rowScanner) (*domain.Article, error) {
	var a domain.Article
	if err := row.Scan(
		&a.ID,
		&a.FeedID,
		&a.Link,
		&a.Title,
		&a.Published,
		&a.Author,
		&a.Excerpt,
		&a.Favorite,
		&a.CreatedAt,
	); err != nil {
		return nil, err
	}

	a.ReadBy = []string{}

	return &a, nil
}
