package query

import "fmt"

// QueryValidationError represents an error found during query validation.
type QueryValidationError struct {
	Field   string
	Message string
}

// Error returns the error message for a QueryValidationError.
func (ve QueryValidationError) Error() string {
	return fmt.Sprintf("validation error in %s: %s", ve.Field, ve.Message)
}

// QueryValidationResult contains the results of a query validation.
type QueryValidationResult struct {
	IsValid bool
	Errors  []QueryValidationError
}

// Err returns the first validation error, or nil when the descriptor is valid.
func (r QueryValidationResult) Err() error {
	if r.IsValid || len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Validate checks the preconditions of a descriptor: a table, a select the
// compiler can build, known operators, count modes and join types. It never
// inspects operand types; malformed operands are skipped at compile time.
// Pagination values and sort directions are compiled as given; ValidateStrict
// checks those as well.
func (p Props) Validate() QueryValidationResult {
	var errors []QueryValidationError

	if p.Table == "" {
		errors = append(errors, QueryValidationError{
			Field:   "table",
			Message: "table name cannot be empty",
		})
	}

	if _, err := BuildSelect(p.Select, p.Join); err != nil {
		errors = append(errors, QueryValidationError{
			Field:   "select",
			Message: err.Error(),
		})
	}

	for i, ff := range p.Where {
		if ff.Field == "" {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("where[%d].field", i),
				Message: "field name cannot be empty",
			})
		}
		for j, pred := range ff.Predicates {
			errors = append(errors, validatePredicate(fmt.Sprintf("where[%d].predicates[%d]", i, j), pred, true)...)
		}
	}

	for i, s := range p.Sort {
		if s.Field == "" {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("sort[%d].field", i),
				Message: "sort field cannot be empty",
			})
		}
	}

	if !p.Count.IsValid() {
		errors = append(errors, QueryValidationError{
			Field:   "count",
			Message: fmt.Sprintf("unknown count mode %q", p.Count),
		})
	}

	if p.Join != "" && p.Join != JoinTypeInner && p.Join != JoinTypeLeft {
		errors = append(errors, QueryValidationError{
			Field:   "join",
			Message: fmt.Sprintf("unknown join type %q", p.Join),
		})
	}

	return QueryValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

// ValidateStrict runs Validate and also rejects sort directions other than
// asc and desc, pages below 1 and negative limits.
func (p Props) ValidateStrict() QueryValidationResult {
	result := p.Validate()
	errors := result.Errors

	for i, s := range p.Sort {
		if s.Direction != SortDirectionAsc && s.Direction != SortDirectionDesc {
			errors = append(errors, QueryValidationError{
				Field:   fmt.Sprintf("sort[%d].direction", i),
				Message: fmt.Sprintf("unknown sort direction %q", s.Direction),
			})
		}
	}
	if p.Page != nil && *p.Page < 1 {
		errors = append(errors, QueryValidationError{
			Field:   "page",
			Message: "page must be 1 or greater",
		})
	}
	if p.Limit != nil && *p.Limit < 0 {
		errors = append(errors, QueryValidationError{
			Field:   "limit",
			Message: "limit cannot be negative",
		})
	}

	return QueryValidationResult{
		IsValid: len(errors) == 0,
		Errors:  errors,
	}
}

func validatePredicate(path string, pred Predicate, allowLogical bool) []QueryValidationError {
	if !pred.Operator.IsValid() {
		return []QueryValidationError{{
			Field:   path + ".operator",
			Message: fmt.Sprintf("unknown operator %q", pred.Operator),
		}}
	}
	if !pred.Operator.isLogical() {
		return nil
	}
	if !allowLogical {
		return []QueryValidationError{{
			Field:   path + ".operator",
			Message: fmt.Sprintf("%s cannot be nested inside another logical operator", pred.Operator),
		}}
	}
	if IsUndefined(pred.Value) {
		return nil
	}
	conds, err := asConditions(pred.Value)
	if err != nil {
		return []QueryValidationError{{Field: path + ".value", Message: err.Error()}}
	}
	var errors []QueryValidationError
	for k, inner := range conds {
		errors = append(errors, validatePredicate(fmt.Sprintf("%s.value[%d]", path, k), inner, false)...)
	}
	return errors
}
