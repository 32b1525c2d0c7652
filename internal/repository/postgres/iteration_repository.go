package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/promptloop/promptloop/internal/domain"
	"github.com/promptloop/promptloop/internal/pkg/database"
	apperrors "github.com/promptloop/promptloop/internal/pkg/errors"
)

// IterationRepository handles iteration data operations in PostgreSQL
type IterationRepository struct {
	db *database.PostgresDB
}

// NewIterationRepository creates a new iteration repository
func NewIterationRepository(db *database.PostgresDB) *IterationRepository {
	return &IterationRepository{db: db}
}

// Exists reports whether an iteration with the given id is present
func (r *IterationRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.Pool.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM iterations WHERE id = $1)", id).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check iteration: %w", err)
	}
	return exists, nil
}

// GetByID retrieves an iteration by ID without its run graph
func (r *IterationRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Iteration, error) {
	query := `
		SELECT id, experiment_id, prompt_version_id, status, total_cost, total_tokens,
			metrics, created_at, updated_at
		FROM iterations
		WHERE id = $1
	`

	var iteration domain.Iteration
	var status string
	var metricsJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, id).Scan(
		&iteration.ID,
		&iteration.ExperimentID,
		&iteration.PromptVersionID,
		&status,
		&iteration.TotalCost,
		&iteration.TotalTokens,
		&metricsJSON,
		&iteration.CreatedAt,
		&iteration.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("iteration not found")
		}
		return nil, fmt.Errorf("failed to get iteration: %w", err)
	}

	iteration.Status = domain.IterationStatus(status)

	if len(metricsJSON) > 0 {
		if err := json.Unmarshal(metricsJSON, &iteration.Metrics); err != nil {
			return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
		}
	}

	return &iteration, nil
}

// GetWithGraph retrieves an iteration with its rubric, runs, outputs, and
// judgments. This is the full working set one aggregation pass reads.
func (r *IterationRepository) GetWithGraph(ctx context.Context, id uuid.UUID) (*domain.Iteration, error) {
	iteration, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	rubric, err := r.getRubric(ctx, id)
	if err != nil {
		return nil, err
	}
	iteration.Rubric = rubric

	runs, err := r.getRuns(ctx, id)
	if err != nil {
		return nil, err
	}

	for i := range runs {
		outputs, err := r.getOutputs(ctx, runs[i].ID)
		if err != nil {
			return nil, err
		}
		runs[i].Outputs = outputs
	}
	iteration.Runs = runs

	return iteration, nil
}

// getRubric retrieves the rubric attached to an iteration, nil when none is
// attached.
func (r *IterationRepository) getRubric(ctx context.Context, iterationID uuid.UUID) (*domain.Rubric, error) {
	query := `
		SELECT r.id, r.criteria
		FROM rubrics r
		JOIN iterations i ON i.rubric_id = r.id
		WHERE i.id = $1
	`

	var rubric domain.Rubric
	var criteriaJSON []byte

	err := r.db.Pool.QueryRow(ctx, query, iterationID).Scan(&rubric.ID, &criteriaJSON)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get rubric: %w", err)
	}

	if len(criteriaJSON) > 0 {
		if err := json.Unmarshal(criteriaJSON, &rubric.Criteria); err != nil {
			return nil, fmt.Errorf("failed to unmarshal rubric criteria: %w", err)
		}
	}

	return &rubric, nil
}

// getRuns retrieves the model runs of an iteration in creation order
func (r *IterationRepository) getRuns(ctx context.Context, iterationID uuid.UUID) ([]domain.ModelRun, error) {
	query := `
		SELECT id, iteration_id, model, model_params, seed, cost, input_tokens, output_tokens
		FROM model_runs
		WHERE iteration_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, iterationID)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.ModelRun
	for rows.Next() {
		var run domain.ModelRun
		var paramsJSON []byte

		err := rows.Scan(
			&run.ID,
			&run.IterationID,
			&run.Model,
			&paramsJSON,
			&run.Seed,
			&run.Cost,
			&run.InputTokens,
			&run.OutputTokens,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}

		if len(paramsJSON) > 0 {
			if err := json.Unmarshal(paramsJSON, &run.ModelParams); err != nil {
				return nil, fmt.Errorf("failed to unmarshal model params: %w", err)
			}
		}

		runs = append(runs, run)
	}

	return runs, nil
}

// getOutputs retrieves a run's outputs with case facets and judgments. The
// order is fixed so everything downstream that iterates outputs is
// deterministic for a given data set.
func (r *IterationRepository) getOutputs(ctx context.Context, runID uuid.UUID) ([]domain.Output, error) {
	query := `
		SELECT o.id, o.run_id, o.content, c.id, c.tags, c.difficulty
		FROM outputs o
		JOIN cases c ON c.id = o.case_id
		WHERE o.run_id = $1
		ORDER BY o.created_at ASC, o.id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query outputs: %w", err)
	}
	defer rows.Close()

	var outputs []domain.Output
	for rows.Next() {
		var output domain.Output

		err := rows.Scan(
			&output.ID,
			&output.RunID,
			&output.Content,
			&output.Case.ID,
			&output.Case.Tags,
			&output.Case.Difficulty,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan output: %w", err)
		}

		outputs = append(outputs, output)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outputs: %w", err)
	}

	for i := range outputs {
		judgments, err := r.getJudgments(ctx, outputs[i].ID)
		if err != nil {
			return nil, err
		}
		outputs[i].Judgments = judgments
	}

	return outputs, nil
}

// getJudgments retrieves the judgments recorded against an output
func (r *IterationRepository) getJudgments(ctx context.Context, outputID uuid.UUID) ([]domain.Judgment, error) {
	query := `
		SELECT id, output_id, judge, mode, scores, winner_output_id, metadata
		FROM judgments
		WHERE output_id = $1
		ORDER BY created_at ASC, id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, outputID)
	if err != nil {
		return nil, fmt.Errorf("failed to query judgments: %w", err)
	}
	defer rows.Close()

	var judgments []domain.Judgment
	for rows.Next() {
		var judgment domain.Judgment
		var mode string
		var scoresJSON, metadataJSON []byte

		err := rows.Scan(
			&judgment.ID,
			&judgment.OutputID,
			&judgment.Judge,
			&mode,
			&scoresJSON,
			&judgment.WinnerOutputID,
			&metadataJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan judgment: %w", err)
		}

		judgment.Mode = domain.JudgmentMode(mode)

		if len(scoresJSON) > 0 {
			if err := json.Unmarshal(scoresJSON, &judgment.Scores); err != nil {
				return nil, fmt.Errorf("failed to unmarshal judgment scores: %w", err)
			}
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &judgment.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal judgment metadata: %w", err)
			}
		}

		judgments = append(judgments, judgment)
	}

	return judgments, nil
}

// SaveMetrics writes the merged metrics document and the rolled-up totals in
// one statement, so a crash between writes can never leave totals that
// disagree with the document they summarize.
func (r *IterationRepository) SaveMetrics(ctx context.Context, id uuid.UUID, doc map[string]any, totalCost float64, totalTokens int64) error {
	metricsJSON, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal metrics: %w", err)
	}

	query := `
		UPDATE iterations SET
			metrics = $1,
			total_cost = $2,
			total_tokens = $3,
			updated_at = NOW()
		WHERE id = $4
	`

	result, err := r.db.Pool.Exec(ctx, query, metricsJSON, totalCost, totalTokens, id)
	if err != nil {
		return fmt.Errorf("failed to save metrics: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.NotFound("iteration not found")
	}

	return nil
}

// UpdateStatus transitions an iteration's status
func (r *IterationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status domain.IterationStatus) error {
	if !status.IsValid() {
		return apperrors.Validation(fmt.Sprintf("invalid iteration status: %s", status))
	}

	query := `
		UPDATE iterations SET
			status = $1,
			updated_at = NOW()
		WHERE id = $2
	`

	result, err := r.db.Pool.Exec(ctx, query, string(status), id)
	if err != nil {
		return fmt.Errorf("failed to update iteration status: %w", err)
	}

	if result.RowsAffected() == 0 {
		return apperrors.NotFound("iteration not found")
	}

	return nil
}

// List retrieves iterations for an experiment, newest first
func (r *IterationRepository) List(ctx context.Context, experimentID uuid.UUID, statuses []domain.IterationStatus, limit, offset int) (*domain.IterationList, error) {
	conditions := []string{"experiment_id = $1"}
	args := []any{experimentID}
	argCount := 1

	if len(statuses) > 0 {
		values := make([]string, 0, len(statuses))
		for _, status := range statuses {
			values = append(values, string(status))
		}
		argCount++
		conditions = append(conditions, fmt.Sprintf("status = ANY($%d)", argCount))
		args = append(args, values)
	}

	whereClause := strings.Join(conditions, " AND ")

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM iterations WHERE %s", whereClause)
	var totalCount int64
	if err := r.db.Pool.QueryRow(ctx, countQuery, args...).Scan(&totalCount); err != nil {
		return nil, fmt.Errorf("failed to count iterations: %w", err)
	}

	query := fmt.Sprintf(`
		SELECT id, experiment_id, prompt_version_id, status, total_cost, total_tokens,
			metrics, created_at, updated_at
		FROM iterations
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argCount+1, argCount+2)

	args = append(args, limit, offset)

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query iterations: %w", err)
	}
	defer rows.Close()

	var iterations []domain.Iteration
	for rows.Next() {
		var iteration domain.Iteration
		var status string
		var metricsJSON []byte

		err := rows.Scan(
			&iteration.ID,
			&iteration.ExperimentID,
			&iteration.PromptVersionID,
			&status,
			&iteration.TotalCost,
			&iteration.TotalTokens,
			&metricsJSON,
			&iteration.CreatedAt,
			&iteration.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan iteration: %w", err)
		}

		iteration.Status = domain.IterationStatus(status)

		if len(metricsJSON) > 0 {
			if err := json.Unmarshal(metricsJSON, &iteration.Metrics); err != nil {
				return nil, fmt.Errorf("failed to unmarshal metrics: %w", err)
			}
		}

		iterations = append(iterations, iteration)
	}

	return &domain.IterationList{
		Iterations: iterations,
		TotalCount: totalCount,
		HasMore:    int64(offset+len(iterations)) < totalCount,
	}, nil
}
