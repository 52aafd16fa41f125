package jobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/corpusforge/corpusgraph/engine/domain"
	"github.com/redis/go-redis/v9"
)

// RedisStore is the external backend, grounded on the original's
// UpstashJobService: a hash per job (`jobs:{id}`) plus a separate string
// key (`jobs:{id}:cache`) for the extraction cache, both with a 24h TTL.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore wraps an already-configured client (TLS/auth/REST-vs-RESP
// selection is the caller's concern; Upstash's wire protocol is
// RESP-compatible so go-redis talks to it directly).
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

func jobKey(id string) string   { return "jobs:" + id }
func cacheKey(id string) string { return "jobs:" + id + ":cache" }

func (r *RedisStore) Create(ctx context.Context, id string, jobType domain.JobType, metadata domain.JobMetadata) (domain.Job, error) {
	now := time.Now()
	job := domain.Job{
		ID:        id,
		Type:      jobType,
		Status:    domain.JobPending,
		Progress:  0,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := r.writeJob(ctx, job); err != nil {
		return domain.Job{}, err
	}
	return job, nil
}

func (r *RedisStore) UpdateProgress(ctx context.Context, id string, status domain.JobStatus, progress *int, details map[string]any) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Status = status
	job.UpdatedAt = time.Now()
	if progress != nil {
		job.Progress = *progress
	}
	if details != nil && isTerminal(status) {
		job.Result = details
	}
	return r.writeJob(ctx, job)
}

func (r *RedisStore) UpdateMetadata(ctx context.Context, id string, patch domain.JobMetadata) error {
	job, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	job.Metadata = mergeMetadata(job.Metadata, patch)
	job.UpdatedAt = time.Now()
	return r.writeJob(ctx, job)
}

func (r *RedisStore) Get(ctx context.Context, id string) (domain.Job, error) {
	fields, err := r.client.HGetAll(ctx, jobKey(id)).Result()
	if err != nil {
		return domain.Job{}, fmt.Errorf("%w: jobstore: get %s: %v", domain.ErrUpstreamTransient, id, err)
	}
	if len(fields) == 0 {
		return domain.Job{}, fmt.Errorf("%w: jobstore: job %s", domain.ErrNotFound, id)
	}

	var job domain.Job
	job.ID = id
	job.Type = domain.JobType(fields["type"])
	job.Status = domain.JobStatus(fields["status"])
	job.Progress, _ = strconv.Atoi(fields["progress"])
	if ts, err := strconv.ParseInt(fields["created_at"], 10, 64); err == nil {
		job.CreatedAt = time.Unix(ts, 0)
	}
	if ts, err := strconv.ParseInt(fields["updated_at"], 10, 64); err == nil {
		job.UpdatedAt = time.Unix(ts, 0)
	}
	if raw, ok := fields["metadata"]; ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &job.Metadata)
	}
	if raw, ok := fields["result"]; ok && raw != "" {
		_ = json.Unmarshal([]byte(raw), &job.Result)
	}
	return job, nil
}

func (r *RedisStore) writeJob(ctx context.Context, job domain.Job) error {
	metadataJSON, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("jobstore: marshal metadata: %w", err)
	}
	fields := map[string]any{
		"id":         job.ID,
		"type":       string(job.Type),
		"status":     string(job.Status),
		"progress":   job.Progress,
		"created_at": job.CreatedAt.Unix(),
		"updated_at": job.UpdatedAt.Unix(),
		"metadata":   string(metadataJSON),
	}
	if job.Result != nil {
		resultJSON, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("jobstore: marshal result: %w", err)
		}
		fields["result"] = string(resultJSON)
	}

	key := jobKey(job.ID)
	if err := r.client.HSet(ctx, key, fields).Err(); err != nil {
		return fmt.Errorf("%w: jobstore: write %s: %v", domain.ErrUpstreamTransient, job.ID, err)
	}
	if err := r.client.Expire(ctx, key, TTLSeconds*time.Second).Err(); err != nil {
		return fmt.Errorf("%w: jobstore: expire %s: %v", domain.ErrUpstreamTransient, job.ID, err)
	}
	return nil
}

func (r *RedisStore) SetExtractionCache(ctx context.Context, id string, data []byte) error {
	if err := r.client.Set(ctx, cacheKey(id), data, TTLSeconds*time.Second).Err(); err != nil {
		return fmt.Errorf("%w: jobstore: set extraction cache %s: %v", domain.ErrUpstreamTransient, id, err)
	}
	return nil
}

func (r *RedisStore) GetExtractionCache(ctx context.Context, id string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, cacheKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("%w: jobstore: get extraction cache %s: %v", domain.ErrUpstreamTransient, id, err)
	}
	return data, true, nil
}
