// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

// postProcessorOutputs maps a post-processor name to the variables it
// extracts from its step's raw result. A step whose post_process appears
// here implicitly provides these variables to later steps; catalogs can
// override or extend this with an explicit "provides" list.
var postProcessorOutputs = map[string][]string{
	"find_transition_id":                {"transition_id"},
	"extract_end_date":                  {"end_date"},
	"extract_attachments":               {"attachments"},
	"count_results":                     {"count", "total"},
	"build_associations":                {"association_ids"},
	"generate_burndown_chart":           {"burndown_data"},
	"calculate_average_resolution_time": {"average_time"},
	"generate_closure_report":           {"closure_report"},
	"calculate_velocity_last_3_sprints": {"velocity_data"},
	"format_notification":               {"notification_text"},
	"schedule_reminder":                 {"reminder_id"},
	"setup_alert_subscription":          {"subscription_id"},
	"format_qa_notification":            {"qa_notification"},
	"generate_daily_summary":            {"daily_summary"},
	"format_and_share_external":         {"share_result"},
	"group_by_stage":                    {"stage_groups"},
	"group_by_lifecycle_stage":          {"lifecycle_groups"},
	"calculate_revenue_forecast":        {"revenue_forecast"},
	"generate_activity_summary":         {"activity_summary"},
	"format_pipelines":                  {"pipeline_data"},
	"bulk_import_contacts":              {"import_results"},
	"bulk_update_lifecycle_stage":       {"update_results"},
}

// PostProcessorOutputs returns the variables the named post-processor
// provides, or nil when the name is unknown. The returned slice is shared;
// callers must not mutate it.
func PostProcessorOutputs(name string) []string {
	return postProcessorOutputs[name]
}
