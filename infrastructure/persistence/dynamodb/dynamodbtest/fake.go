// Package dynamodbtest provides an in-memory stand-in for the DynamoDB
// client. Every call holds one lock, so conditional writes are serialized the
// way DynamoDB serializes writes to a single item.
//
// Only the expression forms produced by the expression builder for
// conjunctions are understood: SET name = value, ADD name value, REMOVE name,
// attribute_exists, attribute_not_exists, begins_with and the comparison
// operators joined by AND.
package dynamodbtest

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// KeySchema names the partition and sort key attributes of a table or index.
type KeySchema struct {
	PartitionKey string
	SortKey      string
}

type item = map[string]types.AttributeValue

type table struct {
	key     KeySchema
	indexes map[string]KeySchema
	items   map[string]item
}

// Fake implements the repositories' DynamoDB client interface in memory.
type Fake struct {
	mu       sync.Mutex
	tables   map[string]*table
	failures map[string][]error
}

// NewFake creates an empty Fake with no tables.
func NewFake() *Fake {
	return &Fake{
		tables:   make(map[string]*table),
		failures: make(map[string][]error),
	}
}

// CreateTable registers a table and its global secondary indexes. Indexes
// are sparse: items lacking an index key attribute are not projected.
func (f *Fake) CreateTable(name string, key KeySchema, indexes map[string]KeySchema) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if indexes == nil {
		indexes = make(map[string]KeySchema)
	}
	f.tables[name] = &table{key: key, indexes: indexes, items: make(map[string]item)}
}

// FailNext makes the next call of operation (e.g. "PutItem") return err.
func (f *Fake) FailNext(operation string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures[operation] = append(f.failures[operation], err)
}

// Items returns a snapshot of every item in a table ordered by primary key.
func (f *Fake) Items(tableName string) []map[string]types.AttributeValue {
	f.mu.Lock()
	defer f.mu.Unlock()

	t, ok := f.tables[tableName]
	if !ok {
		return nil
	}
	keys := make([]string, 0, len(t.items))
	for k := range t.items {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]map[string]types.AttributeValue, 0, len(keys))
	for _, k := range keys {
		out = append(out, copyItem(t.items[k]))
	}
	return out
}

// GetItem implements the DynamoDB GetItem call.
func (f *Fake) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("GetItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := primaryKey(params.Key, t.key)
	if err != nil {
		return nil, err
	}

	out := &dynamodb.GetItemOutput{}
	if existing, ok := t.items[k]; ok {
		out.Item = copyItem(existing)
	}
	return out, nil
}

// PutItem implements the DynamoDB PutItem call.
func (f *Fake) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("PutItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := primaryKey(params.Item, t.key)
	if err != nil {
		return nil, err
	}

	ok, err := evaluate(aws.ToString(params.ConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}

	t.items[k] = copyItem(params.Item)
	return &dynamodb.PutItemOutput{}, nil
}

// UpdateItem implements the DynamoDB UpdateItem call, creating the item when
// it does not exist and no condition prevents it.
func (f *Fake) UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("UpdateItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := primaryKey(params.Key, t.key)
	if err != nil {
		return nil, err
	}

	existing := t.items[k]
	ok, err := evaluate(aws.ToString(params.ConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, existing)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}

	updated := copyItem(existing)
	if updated == nil {
		updated = copyItem(params.Key)
	}
	if err := applyUpdate(aws.ToString(params.UpdateExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, updated); err != nil {
		return nil, err
	}
	t.items[k] = updated

	out := &dynamodb.UpdateItemOutput{}
	if params.ReturnValues == types.ReturnValueAllNew {
		out.Attributes = copyItem(updated)
	}
	return out, nil
}

// DeleteItem implements the DynamoDB DeleteItem call.
func (f *Fake) DeleteItem(ctx context.Context, params *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("DeleteItem"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}
	k, err := primaryKey(params.Key, t.key)
	if err != nil {
		return nil, err
	}

	ok, err := evaluate(aws.ToString(params.ConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, t.items[k])
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, conditionFailed()
	}

	delete(t.items, k)
	return &dynamodb.DeleteItemOutput{}, nil
}

// Query implements the DynamoDB Query call against the table or one of its
// indexes, honoring ScanIndexForward, Limit and ExclusiveStartKey.
func (f *Fake) Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.takeFailure("Query"); err != nil {
		return nil, err
	}
	t, err := f.table(params.TableName)
	if err != nil {
		return nil, err
	}

	schema := t.key
	if params.IndexName != nil {
		idx, ok := t.indexes[*params.IndexName]
		if !ok {
			return nil, &types.ResourceNotFoundException{Message: aws.String("index not found: " + *params.IndexName)}
		}
		schema = idx
	}

	var matched []item
	for _, candidate := range t.items {
		if candidate[schema.PartitionKey] == nil || (schema.SortKey != "" && candidate[schema.SortKey] == nil) {
			continue
		}
		ok, err := evaluate(aws.ToString(params.KeyConditionExpression), params.ExpressionAttributeNames, params.ExpressionAttributeValues, candidate)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, candidate)
		}
	}

	forward := params.ScanIndexForward == nil || *params.ScanIndexForward
	order := func(a, b item) int {
		if c := compare(a[schema.SortKey], b[schema.SortKey]); c != 0 {
			return c
		}
		ak, _ := primaryKey(a, t.key)
		bk, _ := primaryKey(b, t.key)
		return strings.Compare(ak, bk)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if forward {
			return order(matched[i], matched[j]) < 0
		}
		return order(matched[i], matched[j]) > 0
	})

	if len(params.ExclusiveStartKey) > 0 {
		start := len(matched)
		for i, candidate := range matched {
			c := order(candidate, params.ExclusiveStartKey)
			if (forward && c > 0) || (!forward && c < 0) {
				start = i
				break
			}
		}
		matched = matched[start:]
	}

	out := &dynamodb.QueryOutput{}
	if params.Limit != nil && int(*params.Limit) < len(matched) {
		matched = matched[:*params.Limit]
		last := matched[len(matched)-1]
		out.LastEvaluatedKey = make(map[string]types.AttributeValue)
		for _, attr := range []string{t.key.PartitionKey, t.key.SortKey, schema.PartitionKey, schema.SortKey} {
			if attr != "" && last[attr] != nil {
				out.LastEvaluatedKey[attr] = last[attr]
			}
		}
	}

	out.Items = make([]map[string]types.AttributeValue, 0, len(matched))
	for _, m := range matched {
		out.Items = append(out.Items, copyItem(m))
	}
	out.Count = int32(len(out.Items))
	out.ScannedCount = out.Count
	return out, nil
}

func (f *Fake) table(name *string) (*table, error) {
	t, ok := f.tables[aws.ToString(name)]
	if !ok {
		return nil, &types.ResourceNotFoundException{Message: aws.String("table not found: " + aws.ToString(name))}
	}
	return t, nil
}

func (f *Fake) takeFailure(operation string) error {
	queue := f.failures[operation]
	if len(queue) == 0 {
		return nil
	}
	f.failures[operation] = queue[1:]
	return queue[0]
}

func conditionFailed() error {
	return &types.ConditionalCheckFailedException{Message: aws.String("The conditional request failed")}
}

func primaryKey(attrs map[string]types.AttributeValue, key KeySchema) (string, error) {
	pk, ok := scalar(attrs[key.PartitionKey])
	if !ok {
		return "", fmt.Errorf("missing partition key %q", key.PartitionKey)
	}
	if key.SortKey == "" {
		return pk, nil
	}
	sk, ok := scalar(attrs[key.SortKey])
	if !ok {
		return "", fmt.Errorf("missing sort key %q", key.SortKey)
	}
	return pk + "\x00" + sk, nil
}

func copyItem(src map[string]types.AttributeValue) map[string]types.AttributeValue {
	if src == nil {
		return nil
	}
	dst := make(map[string]types.AttributeValue, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

var (
	existsRe     = regexp.MustCompile(`attribute_exists\s*\(\s*(#\w+)\s*\)`)
	notExistsRe  = regexp.MustCompile(`attribute_not_exists\s*\(\s*(#\w+)\s*\)`)
	beginsWithRe = regexp.MustCompile(`begins_with\s*\(\s*(#\w+)\s*,\s*(:\w+)\s*\)`)
	comparisonRe = regexp.MustCompile(`(#\w+)\s*(<=|>=|<>|=|<|>)\s*(:\w+)`)
	clauseRe     = regexp.MustCompile(`\b(SET|REMOVE|ADD|DELETE)\s+`)
)

// evaluate checks a conjunction of predicates against current, which is nil
// when the item does not exist.
func evaluate(expr string, names map[string]string, values map[string]types.AttributeValue, current item) (bool, error) {
	if strings.TrimSpace(expr) == "" {
		return true, nil
	}
	if strings.Contains(expr, " OR ") || strings.Contains(expr, "NOT ") {
		return false, fmt.Errorf("dynamodbtest: unsupported expression %q", expr)
	}

	for _, m := range existsRe.FindAllStringSubmatch(expr, -1) {
		if current == nil || current[names[m[1]]] == nil {
			return false, nil
		}
	}
	for _, m := range notExistsRe.FindAllStringSubmatch(expr, -1) {
		if current != nil && current[names[m[1]]] != nil {
			return false, nil
		}
	}
	for _, m := range beginsWithRe.FindAllStringSubmatch(expr, -1) {
		got, ok := scalar(current[names[m[1]]])
		prefix, _ := scalar(values[m[2]])
		if !ok || !strings.HasPrefix(got, prefix) {
			return false, nil
		}
	}
	for _, m := range comparisonRe.FindAllStringSubmatch(expr, -1) {
		got := current[names[m[1]]]
		if got == nil {
			return false, nil
		}
		c := compare(got, values[m[3]])
		var ok bool
		switch m[2] {
		case "=":
			ok = c == 0
		case "<>":
			ok = c != 0
		case "<":
			ok = c < 0
		case "<=":
			ok = c <= 0
		case ">":
			ok = c > 0
		case ">=":
			ok = c >= 0
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// applyUpdate mutates target according to an update expression.
func applyUpdate(expr string, names map[string]string, values map[string]types.AttributeValue, target item) error {
	locs := clauseRe.FindAllStringSubmatchIndex(expr, -1)
	if len(locs) == 0 {
		return fmt.Errorf("dynamodbtest: empty update expression")
	}

	for i, loc := range locs {
		action := expr[loc[2]:loc[3]]
		end := len(expr)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}

		for _, part := range strings.Split(expr[loc[1]:end], ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}

			switch action {
			case "SET":
				lhs, rhs, ok := strings.Cut(part, "=")
				value, found := values[strings.TrimSpace(rhs)]
				if !ok || !found {
					return fmt.Errorf("dynamodbtest: unsupported SET action %q", part)
				}
				target[names[strings.TrimSpace(lhs)]] = value
			case "REMOVE":
				delete(target, names[part])
			case "ADD":
				fields := strings.Fields(part)
				if len(fields) != 2 {
					return fmt.Errorf("dynamodbtest: unsupported ADD action %q", part)
				}
				name := names[fields[0]]
				sum, err := addNumbers(target[name], values[fields[1]])
				if err != nil {
					return err
				}
				target[name] = sum
			default:
				return fmt.Errorf("dynamodbtest: unsupported update action %s", action)
			}
		}
	}
	return nil
}

func addNumbers(current, delta types.AttributeValue) (types.AttributeValue, error) {
	d, ok := delta.(*types.AttributeValueMemberN)
	if !ok {
		return nil, fmt.Errorf("dynamodbtest: ADD requires a number")
	}
	dv, err := strconv.ParseFloat(d.Value, 64)
	if err != nil {
		return nil, err
	}

	var cv float64
	if current != nil {
		c, ok := current.(*types.AttributeValueMemberN)
		if !ok {
			return nil, fmt.Errorf("dynamodbtest: ADD target is not a number")
		}
		if cv, err = strconv.ParseFloat(c.Value, 64); err != nil {
			return nil, err
		}
	}
	return &types.AttributeValueMemberN{Value: strconv.FormatFloat(cv+dv, 'f', -1, 64)}, nil
}

// compare orders two scalar attribute values; numbers numerically, anything
// else as strings. A missing value sorts first.
func compare(a, b types.AttributeValue) int {
	an, aNum := a.(*types.AttributeValueMemberN)
	bn, bNum := b.(*types.AttributeValueMemberN)
	if aNum && bNum {
		af, _ := strconv.ParseFloat(an.Value, 64)
		bf, _ := strconv.ParseFloat(bn.Value, 64)
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		default:
			return 0
		}
	}
	as, _ := scalar(a)
	bs, _ := scalar(b)
	return strings.Compare(as, bs)
}

func scalar(v types.AttributeValue) (string, bool) {
	switch tv := v.(type) {
	case *types.AttributeValueMemberS:
		return tv.Value, true
	case *types.AttributeValueMemberN:
		return tv.Value, true
	default:
		return "", false
	}
}
