package csv

import (
	"fmt"

	"github.com/axonops/entrystore"
	"github.com/axonops/entrystore/partition"
	"github.com/axonops/entrystore/schema"
	"github.com/axonops/entrystore/storage"
	"github.com/axonops/entrystore/storage/local"
)

func init() {
	entrystore.Register(entrystore.BackendCSV, newFromConfig)
}

// newFromConfig builds a CSV store from a factory config map. Recognized
// keys: "adapter" (storage.Adapter) or "root" (string, local directory),
// "partitioner" (partition.Partitioner) or "partition" (map with "type"
// single|fixedsize|yearmonth and its parameters), and "template"
// (*schema.Template).
func newFromConfig(config map[string]interface{}) (entrystore.Store, error) {
	adapter, err := adapterFromConfig(config)
	if err != nil {
		return nil, err
	}
	part, err := partitionerFromConfig(config)
	if err != nil {
		return nil, err
	}
	var opts []Option
	if t, ok := config["template"].(*schema.Template); ok && t != nil {
		opts = append(opts, WithTemplate(t))
	}
	return NewStore(adapter, part, opts...)
}

func adapterFromConfig(config map[string]interface{}) (storage.Adapter, error) {
	if a, ok := config["adapter"].(storage.Adapter); ok && a != nil {
		return a, nil
	}
	root, ok := config["root"].(string)
	if !ok || root == "" {
		return nil, fmt.Errorf("csv config needs an adapter or a root directory")
	}
	return local.New(root)
}

func partitionerFromConfig(config map[string]interface{}) (partition.Partitioner, error) {
	if p, ok := config["partitioner"].(partition.Partitioner); ok && p != nil {
		return p, nil
	}
	spec, ok := config["partition"].(map[string]interface{})
	if !ok {
		return nil, fmt.Errorf("csv config needs a partitioner or a partition spec")
	}
	kind, _ := spec["type"].(string)
	switch kind {
	case "single":
		name, ok := spec["name"].(string)
		if !ok || name == "" {
			return nil, fmt.Errorf("single partition spec needs a name")
		}
		return partition.NewSingle(name), nil
	case "fixedsize":
		size, ok := toSize(spec["size"])
		if !ok {
			return nil, fmt.Errorf("fixedsize partition spec needs a numeric size")
		}
		return partition.NewFixedSize(size)
	case "yearmonth":
		return partition.NewYearMonth(), nil
	}
	return nil, fmt.Errorf("unknown partition type: %q", kind)
}

func toSize(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}
