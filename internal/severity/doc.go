// Package severity grades findings as low, medium or critical from the
// per-rule policies of the rules file.
//
// Threshold policies ({crit, med}) are evaluated only for the metric
// rules listed in thresholdMetrics; adding a metric-bearing rule needs an
// explicit entry there. Boolean policies map straight to a level.
package severity
