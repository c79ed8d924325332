// storage-demo exercises the engine end to end: open a table, insert a few
// rows, read them back, update and delete one, flush, and report.
package main

import (
	"flag"
	"fmt"
	"log"

	"github.com/abhiw/storagePrototype/internal"
	"github.com/abhiw/storagePrototype/internal/engine"
	"github.com/abhiw/storagePrototype/internal/page"
	"github.com/abhiw/storagePrototype/internal/schema"
	"github.com/abhiw/storagePrototype/internal/tuple"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file")
	workdir := flag.String("workdir", "demo-data", "data directory (ignored when -config is set)")
	flag.Parse()

	cfg := internal.DefaultConfig()
	if *configPath != "" {
		loaded, err := internal.LoadConfig(*configPath)
		if err != nil {
			log.Fatalf("load config: %v", err)
		}
		cfg = loaded
	} else {
		cfg.Storage.Workdir = *workdir
		cfg.Storage.TableName = "employees"
	}

	s := schema.New()
	must(s.AddColumn("id", schema.Integer, false, 0))
	must(s.AddColumn("name", schema.VarChar, false, 100))
	must(s.AddColumn("salary", schema.Double, false, 0))
	must(s.AddColumn("department", schema.VarChar, true, 50))
	s.Finalize()

	e, err := engine.Open(cfg, s)
	if err != nil {
		log.Fatalf("open engine: %v", err)
	}
	defer e.Close()

	tbl := e.Table()

	rows := []struct {
		id     int32
		name   string
		salary float64
		dept   string
	}{
		{1001, "Alice Johnson", 75000.50, "Engineering"},
		{1002, "Bob Stone", 64000.00, "Sales"},
		{1003, "Carol Reyes", 81000.25, ""},
	}

	ids := make([]page.TupleID, 0, len(rows))
	for _, r := range rows {
		b, err := tbl.NewBuilder()
		if err != nil {
			log.Fatalf("builder: %v", err)
		}
		b.SetInteger("id", r.id).SetVarChar("name", r.name).SetDouble("salary", r.salary)
		if r.dept != "" {
			b.SetVarChar("department", r.dept)
		}
		values, err := b.Build()
		if err != nil {
			log.Fatalf("build row: %v", err)
		}
		tid, err := tbl.Insert(values)
		if err != nil {
			log.Fatalf("insert: %v", err)
		}
		ids = append(ids, tid)
		fmt.Printf("inserted %-14s -> (page %d, slot %d)\n", r.name, tid.PageID, tid.SlotID)
	}

	// Give Alice a raise, in place.
	b, _ := tbl.NewBuilder()
	values, err := b.
		SetInteger("id", 1001).
		SetVarChar("name", "Alice Smith").
		SetDouble("salary", 85000.75).
		SetVarChar("department", "Engineering").
		Build()
	if err != nil {
		log.Fatalf("build update: %v", err)
	}
	if err := tbl.Update(ids[0], values); err != nil {
		log.Fatalf("update: %v", err)
	}

	if err := tbl.Delete(ids[1]); err != nil {
		log.Fatalf("delete: %v", err)
	}

	if err := tbl.Flush(); err != nil {
		log.Fatalf("flush: %v", err)
	}

	fmt.Println("\ncurrent rows:")
	err = tbl.Scan(func(id page.TupleID, row *tuple.Accessor) error {
		rid, err := row.Integer("id")
		if err != nil {
			return err
		}
		name, err := row.String("name")
		if err != nil {
			return err
		}
		salary, err := row.Double("salary")
		if err != nil {
			return err
		}
		dept := "<null>"
		if isNull, err := row.IsNull("department"); err == nil && !isNull {
			dept, _ = row.String("department")
		}
		fmt.Printf("  (page %d, slot %d) id=%d name=%q salary=%.2f department=%s\n",
			id.PageID, id.SlotID, rid, name, salary, dept)
		return nil
	})
	if err != nil {
		log.Fatalf("scan: %v", err)
	}
}

func must(err error) {
	if err != nil {
		log.Fatal(err)
	}
}
