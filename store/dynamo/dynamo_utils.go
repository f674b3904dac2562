package dynamo

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/Laisky/errors/v2"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/zlnvch/deskfolio/store"
)

const batchWriteLimit = 25

func newDynamoDBClient(ctx context.Context, devMode bool, dynamodbEndpoint string) (*dynamodb.Client, error) {
	if devMode {
		// Dummy credentials and region for DynamoDB Local
		cfg, err := config.LoadDefaultConfig(ctx,
			config.WithRegion("us-east-1"),
			config.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider("dummy", "dummy", ""),
			),
		)
		if err != nil {
			return nil, err
		}

		return dynamodb.NewFromConfig(cfg, func(o *dynamodb.Options) {
			if dynamodbEndpoint != "" {
				o.BaseEndpoint = aws.String(dynamodbEndpoint)
			}
		}), nil
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, err
	}

	return dynamodb.NewFromConfig(cfg), nil
}

func getTables(client *dynamodb.Client, ctx context.Context) ([]string, error) {
	var tables []string
	paginator := dynamodb.NewListTablesPaginator(client, &dynamodb.ListTablesInput{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		tables = append(tables, page.TableNames...)
	}
	return tables, nil
}

func itemKey(pk string, sk string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: pk},
		"SK": &types.AttributeValueMemberS{Value: sk},
	}
}

// getItem retrieves an item of type T from DynamoDB by PK and SK
func getItem[T any](dynamoStore *DynamoDeskfolioStore, ctx context.Context, pk string, sk string, consistentRead bool) (T, error) {
	var zero T

	resp, err := dynamoStore.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(dynamoStore.tableName),
		Key:            itemKey(pk, sk),
		ConsistentRead: aws.Bool(consistentRead),
	})
	if err != nil {
		return zero, errors.Wrap(err, "GetItem failed")
	}
	if resp.Item == nil {
		return zero, store.ErrItemNotFound
	}

	var item T
	if err := attributevalue.UnmarshalMap(resp.Item, &item); err != nil {
		return zero, errors.Wrap(err, "failed to unmarshal item")
	}

	return item, nil
}

// putItem writes item unconditionally, replacing any existing record.
func putItem[T any](dynamoStore *DynamoDeskfolioStore, ctx context.Context, item T) error {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return errors.Wrap(err, "marshal error")
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Item:      avMap,
	})
	if err != nil {
		return errors.Wrap(err, "failed to put item")
	}
	return nil
}

// insertItem writes item only if no record with the same PK exists.
// Returns store.ErrConditionFailed when one does.
func insertItem[T any](dynamoStore *DynamoDeskfolioStore, ctx context.Context, item T) error {
	avMap, err := attributevalue.MarshalMap(item)
	if err != nil {
		return errors.Wrap(err, "marshal error")
	}
	if _, ok := avMap["PK"]; !ok {
		return errors.New("struct missing PK field")
	}
	if _, ok := avMap["SK"]; !ok {
		return errors.New("struct missing SK field")
	}

	_, err = dynamoStore.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(dynamoStore.tableName),
		Item:                avMap,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var cce *types.ConditionalCheckFailedException
		if errors.As(err, &cce) {
			return store.ErrConditionFailed
		}
		return errors.Wrap(err, "failed to put item")
	}

	return nil
}

// upsertItem creates or updates the item at PK/SK in a single UpdateItem.
func upsertItem(
	dynamoStore *DynamoDeskfolioStore,
	ctx context.Context,
	pk string,
	sk string,
	set map[string]types.AttributeValue,
	setOnInsert map[string]types.AttributeValue,
	remove []string,
) error {
	input, err := buildUpdateInput(dynamoStore.tableName, pk, sk, set, setOnInsert, remove)
	if err != nil {
		return err
	}

	if _, err := dynamoStore.client.UpdateItem(ctx, input); err != nil {
		return errors.Wrap(err, "update failed")
	}
	return nil
}

// buildUpdateInput assigns set unconditionally, setOnInsert only where the
// attribute is absent, and removes the remove attributes.
func buildUpdateInput(
	tableName string,
	pk string,
	sk string,
	set map[string]types.AttributeValue,
	setOnInsert map[string]types.AttributeValue,
	remove []string,
) (*dynamodb.UpdateItemInput, error) {
	exprAttrNames := make(map[string]string)
	exprAttrValues := make(map[string]types.AttributeValue)
	var assignments []string

	for field, val := range set {
		if field == "PK" || field == "SK" {
			continue
		}
		assignments = append(assignments, fmt.Sprintf("#%s = :%s", field, field))
		exprAttrNames["#"+field] = field
		exprAttrValues[":"+field] = val
	}
	for field, val := range setOnInsert {
		assignments = append(assignments, fmt.Sprintf("#%s = if_not_exists(#%s, :%s)", field, field, field))
		exprAttrNames["#"+field] = field
		exprAttrValues[":"+field] = val
	}

	var updateExpr string
	if len(assignments) > 0 {
		updateExpr = "SET " + strings.Join(assignments, ", ")
	}
	if len(remove) > 0 {
		names := make([]string, 0, len(remove))
		for _, field := range remove {
			names = append(names, "#"+field)
			exprAttrNames["#"+field] = field
		}
		updateExpr += " REMOVE " + strings.Join(names, ", ")
	}
	if updateExpr == "" {
		return nil, errors.New("nothing to update")
	}

	input := &dynamodb.UpdateItemInput{
		TableName:                aws.String(tableName),
		Key:                      itemKey(pk, sk),
		UpdateExpression:         aws.String(strings.TrimSpace(updateExpr)),
		ExpressionAttributeNames: exprAttrNames,
	}
	if len(exprAttrValues) > 0 {
		input.ExpressionAttributeValues = exprAttrValues
	}
	return input, nil
}

// queryByPK returns items of type T with the given PK whose SK starts with
// skPrefix (any SK when empty), ordered by SK, with a limit.
func queryByPK[T any](dynamoStore *DynamoDeskfolioStore, ctx context.Context, pk string, skPrefix string, scanIndexForward bool, limit int32) ([]T, error) {
	var results []T

	keyCond := "PK = :pk"
	exprAttrValues := map[string]types.AttributeValue{
		":pk": &types.AttributeValueMemberS{Value: pk},
	}
	if skPrefix != "" {
		keyCond += " AND begins_with(SK, :skPrefix)"
		exprAttrValues[":skPrefix"] = &types.AttributeValueMemberS{Value: skPrefix}
	}

	input := &dynamodb.QueryInput{
		TableName:                 aws.String(dynamoStore.tableName),
		KeyConditionExpression:    aws.String(keyCond),
		ExpressionAttributeValues: exprAttrValues,
		ScanIndexForward:          aws.Bool(scanIndexForward),
	}
	if limit > 0 {
		input.Limit = aws.Int32(limit)
	}

	// dynamodb applies limit per page, so the total is also capped here
	paginator := dynamodb.NewQueryPaginator(dynamoStore.client, input)

	for paginator.HasMorePages() {
		if limit > 0 && len(results) >= int(limit) {
			break
		}

		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, errors.Wrap(err, "query failed")
		}

		var pageItems []T
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &pageItems); err != nil {
			return nil, errors.Wrap(err, "failed to unmarshal page items")
		}

		results = append(results, pageItems...)
	}

	if limit > 0 && len(results) > int(limit) {
		results = results[:limit]
	}

	return results, nil
}

// writeBatchRequests handles batch writes (Put or Delete) with retries
// Returns any unprocessed items as []T
func writeBatchRequests[T any](dynamoStore *DynamoDeskfolioStore, ctx context.Context, requests []types.WriteRequest) ([]T, error) {
	if len(requests) == 0 {
		return nil, nil
	}

	backoff := 50 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return unmarshalUnprocessed[T](requests), ctx.Err()
		default:
		}

		resp, err := dynamoStore.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
			RequestItems: map[string][]types.WriteRequest{
				dynamoStore.tableName: requests,
			},
		})
		if err != nil {
			return unmarshalUnprocessed[T](requests), errors.Wrap(err, "BatchWriteItem failed")
		}

		unprocessed := resp.UnprocessedItems[dynamoStore.tableName]
		if len(unprocessed) == 0 {
			return nil, nil
		}

		requests = unprocessed

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return unmarshalUnprocessed[T](requests), ctx.Err()
		case <-timer.C:
		}

		if backoff < time.Second {
			backoff *= 2
		}
	}
}

// helper to convert WriteRequests back to []T
func unmarshalUnprocessed[T any](reqs []types.WriteRequest) []T {
	failed := make([]T, 0, len(reqs))
	for _, wr := range reqs {
		var av map[string]types.AttributeValue
		switch {
		case wr.PutRequest != nil:
			av = wr.PutRequest.Item
		case wr.DeleteRequest != nil:
			av = wr.DeleteRequest.Key
		default:
			continue
		}
		var item T
		if err := attributevalue.UnmarshalMap(av, &item); err == nil {
			failed = append(failed, item)
		}
	}
	return failed
}

// deleteItem removes the item at PK/SK. Deleting a missing item is not an error.
func deleteItem(dynamoStore *DynamoDeskfolioStore, ctx context.Context, pk string, sk string) error {
	_, err := dynamoStore.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(dynamoStore.tableName),
		Key:       itemKey(pk, sk),
	})
	if err != nil {
		return errors.Wrap(err, "delete failed")
	}
	return nil
}

// batchDeleteByPKThrottled deletes every item in a partition. Query pages are
// larger for efficiency, but deletion is done in 25-item batches with throttling.
func batchDeleteByPKThrottled(dynamoStore *DynamoDeskfolioStore, ctx context.Context, pk string, throttle time.Duration) error {
	const queryPageSize int32 = 200

	var lastEvaluatedKey map[string]types.AttributeValue

	for {
		resp, err := dynamoStore.client.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(dynamoStore.tableName),
			KeyConditionExpression: aws.String("PK = :pk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: pk},
			},
			ProjectionExpression: aws.String("PK, SK"),
			Limit:                aws.Int32(queryPageSize),
			ExclusiveStartKey:    lastEvaluatedKey,
		})
		if err != nil {
			return errors.Wrap(err, "query failed")
		}

		if len(resp.Items) == 0 {
			return nil
		}

		delRequests := make([]types.WriteRequest, 0, len(resp.Items))
		for _, item := range resp.Items {
			pkAttr, okPK := item["PK"]
			skAttr, okSK := item["SK"]
			if !okPK || !okSK {
				continue
			}
			delRequests = append(delRequests, types.WriteRequest{
				DeleteRequest: &types.DeleteRequest{
					Key: map[string]types.AttributeValue{
						"PK": pkAttr,
						"SK": skAttr,
					},
				},
			})
		}

		for i := 0; i < len(delRequests); i += batchWriteLimit {
			end := min(i+batchWriteLimit, len(delRequests))

			startTime := time.Now()

			unprocessed, err := writeBatchRequests[map[string]types.AttributeValue](dynamoStore, ctx, delRequests[i:end])
			if err != nil {
				return errors.Wrap(err, "batch delete failed")
			}
			if len(unprocessed) > 0 {
				return errors.Errorf("batch delete left %d items", len(unprocessed))
			}

			elapsed := time.Since(startTime)
			if elapsed < throttle {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(throttle - elapsed):
				}
			}
		}

		lastEvaluatedKey = resp.LastEvaluatedKey
		if lastEvaluatedKey == nil {
			return nil
		}
	}
}
