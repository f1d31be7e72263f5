// Copyright (C) 2017 ScyllaDB

package table

import "github.com/scylladb/gocqlx/v2/table"

// Table models
var (
	Cluster = table.New(table.Metadata{
		Name: "cluster",
		Columns: []string{
			"name",
			"partitioner",
			"seeds",
		},
		PartKey: []string{"name"},
	})

	RepairUnit = table.New(table.Metadata{
		Name: "repair_unit",
		Columns: []string{
			"cluster_name",
			"id",
			"keyspace_name",
			"table_names",
		},
		PartKey: []string{"cluster_name"},
		SortKey: []string{"id"},
	})

	RepairRun = table.New(table.Metadata{
		Name: "repair_run",
		Columns: []string{
			"cluster_name",
			"id",
			"unit_id",
			"state",
			"parallelism",
			"intensity",
			"owner",
			"cause",
			"topology_hash",
			"segment_count",
			"creation_time",
			"start_time",
			"end_time",
		},
		PartKey: []string{"cluster_name"},
		SortKey: []string{"id"},
	})

	RepairSegment = table.New(table.Metadata{
		Name: "repair_segment",
		Columns: []string{
			"run_id",
			"start_token",
			"id",
			"end_token",
			"state",
			"command_id",
			"coordinator_host",
			"fail_count",
			"start_time",
			"end_time",
		},
		PartKey: []string{"run_id"},
		SortKey: []string{"start_token"},
	})

	RepairSchedule = table.New(table.Metadata{
		Name: "repair_schedule",
		Columns: []string{
			"id",
			"cluster_name",
			"unit_id",
			"state",
			"owner",
			"intensity",
			"parallelism",
			"segment_count",
			"period",
			"cron_expression",
			"next_activation",
			"run_history",
			"creation_time",
			"pause_time",
		},
		PartKey: []string{"id"},
	})
)
