package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/fieldmetrics/api/internal/model"
)

// Key layout:
//
//	job:<id>                  JSON job blob
//	jobs:status:<STATUS>      set of job ids per status
//	jobs:active:<recordId>    id of the record's active job
//	record:<id>               JSON record blob
//	report:<id>               JSON report blob
//	report:job:<jobId>        report id for a completed job
//	metrics:<jobId>           JSON metrics bundle
//	tempo:<jobId>             list of JSON tempo rows
//	events:<jobId>            list of JSON event rows
//
// Jobs and results carry no TTL: they are only removed by an explicit
// administrative purge.

// RedisJobStore implements JobStore on Redis.
type RedisJobStore struct {
	redis *redis.Client
}

func NewRedisJobStore(redisClient *redis.Client) *RedisJobStore {
	return &RedisJobStore{redis: redisClient}
}

func jobKey(id string) string            { return "job:" + id }
func statusKey(s model.JobStatus) string { return "jobs:status:" + string(s) }
func activeKey(recordID string) string   { return "jobs:active:" + recordID }

func (s *RedisJobStore) Create(ctx context.Context, job *model.AnalysisJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.SAdd(ctx, statusKey(job.Status), job.ID)
	pipe.Set(ctx, activeKey(job.SourceRecordID), job.ID, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (s *RedisJobStore) Get(ctx context.Context, id string) (*model.AnalysisJob, error) {
	data, err := s.redis.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var job model.AnalysisJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, err
	}
	return &job, nil
}

func (s *RedisJobStore) Save(ctx context.Context, job *model.AnalysisJob, prevStatus model.JobStatus) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	if prevStatus != job.Status {
		pipe.SRem(ctx, statusKey(prevStatus), job.ID)
		pipe.SAdd(ctx, statusKey(job.Status), job.ID)
	}
	if job.Terminal() {
		// Free the record's active-job slot once this job can no longer
		// move. A concurrent submit may then create a fresh job.
		pipe.Del(ctx, activeKey(job.SourceRecordID))
	} else {
		pipe.Set(ctx, activeKey(job.SourceRecordID), job.ID, 0)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save job: %w", err)
	}
	return nil
}

func (s *RedisJobStore) GetActiveBySource(ctx context.Context, sourceRecordID string) (*model.AnalysisJob, error) {
	id, err := s.redis.Get(ctx, activeKey(sourceRecordID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	job, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job.Terminal() {
		// Stale pointer from a crash between transition and index update.
		s.redis.Del(ctx, activeKey(sourceRecordID))
		return nil, ErrNotFound
	}
	return job, nil
}

func (s *RedisJobStore) ListByStatus(ctx context.Context, status model.JobStatus) ([]*model.AnalysisJob, error) {
	ids, err := s.redis.SMembers(ctx, statusKey(status)).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.AnalysisJob, 0, len(ids))
	for _, id := range ids {
		job, err := s.Get(ctx, id)
		if err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// RedisRecordStore implements RecordStore on Redis.
type RedisRecordStore struct {
	redis *redis.Client
}

func NewRedisRecordStore(redisClient *redis.Client) *RedisRecordStore {
	return &RedisRecordStore{redis: redisClient}
}

func recordKey(id string) string { return "record:" + id }

func (s *RedisRecordStore) Create(ctx context.Context, record *model.SourceRecord) error {
	return s.Save(ctx, record)
}

func (s *RedisRecordStore) Get(ctx context.Context, id string) (*model.SourceRecord, error) {
	data, err := s.redis.Get(ctx, recordKey(id)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var record model.SourceRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

func (s *RedisRecordStore) Save(ctx context.Context, record *model.SourceRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return s.redis.Set(ctx, recordKey(record.ID), data, 0).Err()
}

// RedisResultStore implements ResultStore on Redis. The whole bundle is
// written through one transactional pipeline so a crash mid-ingestion
// cannot leave a report referencing missing metric rows.
type RedisResultStore struct {
	redis *redis.Client
}

func NewRedisResultStore(redisClient *redis.Client) *RedisResultStore {
	return &RedisResultStore{redis: redisClient}
}

func reportKey(id string) string       { return "report:" + id }
func reportJobKey(jobID string) string { return "report:job:" + jobID }

func (s *RedisResultStore) SaveBundle(ctx context.Context, bundle *model.ResultBundle) error {
	reportData, err := json.Marshal(bundle.Report)
	if err != nil {
		return err
	}
	metricsData, err := json.Marshal(bundle.Metrics)
	if err != nil {
		return err
	}

	pipe := s.redis.TxPipeline()
	pipe.Set(ctx, reportKey(bundle.Report.ID), reportData, 0)
	pipe.Set(ctx, reportJobKey(bundle.Report.JobID), bundle.Report.ID, 0)
	pipe.Set(ctx, "metrics:"+bundle.Metrics.JobID, metricsData, 0)
	for _, row := range bundle.Tempo {
		data, err := json.Marshal(row)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, "tempo:"+row.JobID, data)
	}
	for _, ev := range bundle.Events {
		data, err := json.Marshal(ev)
		if err != nil {
			return err
		}
		pipe.RPush(ctx, "events:"+ev.JobID, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist result bundle: %w", err)
	}
	return nil
}

func (s *RedisResultStore) GetReport(ctx context.Context, reportID string) (*model.AnalysisReport, error) {
	data, err := s.redis.Get(ctx, reportKey(reportID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}

	var report model.AnalysisReport
	if err := json.Unmarshal(data, &report); err != nil {
		return nil, err
	}
	return &report, nil
}

func (s *RedisResultStore) GetReportByJob(ctx context.Context, jobID string) (*model.AnalysisReport, error) {
	id, err := s.redis.Get(ctx, reportJobKey(jobID)).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return s.GetReport(ctx, id)
}
