// Package validator checks exported markdown reports before they are published.
package validator

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"njvaxbot/pkg/metadata"
)

// Validation errors.
var (
	ErrNoTable       = errors.New("no table found")
	ErrInvalidReport = errors.New("report is invalid")
)

var keyPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidationError represents a validation error with context.
type ValidationError struct {
	Field   string
	Value   string
	Message string
	Line    int
	Column  int
}

// ValidationResult contains validation results.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []string
	Stats    ValidationStats
	IsValid  bool
}

// ValidationStats contains validation statistics.
type ValidationStats struct {
	TotalRows   int
	ValidRows   int
	InvalidRows int
	Columns     int
}

// ReportValidator validates the table of a signed report.
type ReportValidator struct {
	// ExpectedRows warns when the row count differs; 0 disables the check.
	ExpectedRows int
}

// NewReportValidator creates a new validator.
func NewReportValidator(expectedRows int) *ReportValidator {
	return &ReportValidator{ExpectedRows: expectedRows}
}

// ValidateMarkdown checks that the first table is rectangular, that every
// index cell is an entity key and that every other cell is a number.
func (v *ReportValidator) ValidateMarkdown(markdown string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	var header []string

	for lineNum, line := range strings.Split(markdown, "\n") {
		line = strings.TrimSpace(line)

		if !strings.HasPrefix(line, "|") {
			if header != nil {
				break
			}

			continue
		}

		cells := splitRow(line)

		if header == nil {
			header = cells
			result.Stats.Columns = len(header)

			continue
		}

		// Skip markdown table separators
		if strings.Contains(line, "---") {
			continue
		}

		result.Stats.TotalRows++

		if errs := validateRow(cells, header, lineNum+1); len(errs) > 0 {
			result.IsValid = false
			result.Stats.InvalidRows++
			result.Errors = append(result.Errors, errs...)
		} else {
			result.Stats.ValidRows++
		}
	}

	if header == nil {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{Message: ErrNoTable.Error()})

		return result
	}

	if v.ExpectedRows > 0 && result.Stats.ValidRows != v.ExpectedRows {
		result.Warnings = append(result.Warnings,
			fmt.Sprintf("unexpected row count: got %d, expected %d (check for dropped keys)",
				result.Stats.ValidRows, v.ExpectedRows))
	}

	return result
}

// ValidateIntegrity checks the content against the hash in its metadata block.
func (v *ReportValidator) ValidateIntegrity(content string) *ValidationResult {
	result := &ValidationResult{IsValid: true}

	if _, err := metadata.Verify(content); err != nil {
		result.IsValid = false
		result.Errors = append(result.Errors, ValidationError{
			Message: fmt.Sprintf("integrity check failed: %v", err),
		})
	}

	return result
}

// Validate runs both checks and returns ErrInvalidReport listing the first error.
func (v *ReportValidator) Validate(content string) (*ValidationResult, error) {
	result := v.ValidateMarkdown(content)
	integrity := v.ValidateIntegrity(content)

	result.Errors = append(result.Errors, integrity.Errors...)
	result.IsValid = result.IsValid && integrity.IsValid

	if !result.IsValid {
		return result, fmt.Errorf("%w: %s", ErrInvalidReport, result.Errors[0].Message)
	}

	return result, nil
}

func splitRow(row string) []string {
	cells := strings.Split(row, "|")

	// Remove leading/trailing empty cells
	var values []string
	for i := 1; i < len(cells)-1; i++ {
		values = append(values, strings.TrimSpace(cells[i]))
	}

	return values
}

// validateRow validates a single table row.
func validateRow(cells, header []string, lineNum int) []ValidationError {
	if len(cells) != len(header) {
		return []ValidationError{{
			Line:    lineNum,
			Column:  1,
			Message: fmt.Sprintf("expected %d columns, got %d", len(header), len(cells)),
		}}
	}

	var errs []ValidationError

	if !keyPattern.MatchString(cells[0]) {
		errs = append(errs, ValidationError{
			Line:    lineNum,
			Column:  1,
			Field:   header[0],
			Value:   cells[0],
			Message: "index is not a valid key",
		})
	}

	for i := 1; i < len(cells); i++ {
		if _, err := strconv.ParseFloat(cells[i], 64); err != nil {
			errs = append(errs, ValidationError{
				Line:    lineNum,
				Column:  i + 1,
				Field:   header[i],
				Value:   cells[i],
				Message: "value is not a number",
			})
		}
	}

	return errs
}

// String returns string representation of validation result.
func (r *ValidationResult) String() string {
	status := "✅ VALID"
	if !r.IsValid {
		status = "❌ INVALID"
	}

	return fmt.Sprintf(
		"%s | Total: %d | Valid: %d | Invalid: %d | Warnings: %d",
		status,
		r.Stats.TotalRows,
		r.Stats.ValidRows,
		r.Stats.InvalidRows,
		len(r.Warnings),
	)
}

// PrintErrors prints validation errors in readable format.
func (r *ValidationResult) PrintErrors() {
	if len(r.Errors) == 0 {
		return
	}

	fmt.Println("❌ Validation Errors:")

	for _, err := range r.Errors {
		if err.Line > 0 {
			fmt.Printf("  Line %d, Col %d", err.Line, err.Column)

			if err.Field != "" {
				fmt.Printf(" [%s]", err.Field)
			}

			fmt.Printf(": %s\n", err.Message)

			if err.Value != "" {
				fmt.Printf("    Found: %q\n", err.Value)
			}
		} else {
			fmt.Printf("  %s\n", err.Message)
		}
	}
}

// PrintWarnings prints validation warnings.
func (r *ValidationResult) PrintWarnings() {
	if len(r.Warnings) == 0 {
		return
	}

	fmt.Println("⚠️  Validation Warnings:")

	for _, warn := range r.Warnings {
		fmt.Printf("  %s\n", warn)
	}
}
