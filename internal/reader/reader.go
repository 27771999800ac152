package reader

import (
	"context"
	"fmt"

	"github.com/mafredri/cdp/protocol/fetch"
	"github.com/mafredri/cdp/protocol/network"

	"cdpjobstats/pkg/model"
	"cdpjobstats/pkg/traffic"
)

// Reader 将一次已完成的网络交换规范化为响应体
type Reader interface {
	Read(ctx context.Context, ex *traffic.Exchange) (model.Body, error)
}

// FetchBodies Fetch 域读取暂停响应体的能力，cdp.Fetch 满足该接口
type FetchBodies interface {
	GetResponseBody(ctx context.Context, args *fetch.GetResponseBodyArgs) (*fetch.GetResponseBodyReply, error)
}

// NetworkBodies Network 域读取已完成响应体的能力，cdp.Network 满足该接口
type NetworkBodies interface {
	GetResponseBody(ctx context.Context, args *network.GetResponseBodyArgs) (*network.GetResponseBodyReply, error)
}

// FetchReader 读取在响应阶段被暂停的请求
type FetchReader struct {
	client FetchBodies
}

// NewFetchReader 创建 Fetch 域读取器
func NewFetchReader(client FetchBodies) *FetchReader {
	return &FetchReader{client: client}
}

// Read 读取并解码暂停中的响应体，ex.ID 为 Fetch 请求ID
func (r *FetchReader) Read(ctx context.Context, ex *traffic.Exchange) (model.Body, error) {
	reply, err := r.client.GetResponseBody(ctx, fetch.NewGetResponseBodyArgs(fetch.RequestID(ex.ID)))
	if err != nil {
		return model.Body{}, fmt.Errorf("fetch get response body: %w", err)
	}
	ex.Body = rawBytes(reply.Body, reply.Base64Encoded)
	return Decode(ex.Body, ex.ContentType()), nil
}

// NetworkReader 读取 Network 域中加载完成的请求
type NetworkReader struct {
	client NetworkBodies
}

// NewNetworkReader 创建 Network 域读取器
func NewNetworkReader(client NetworkBodies) *NetworkReader {
	return &NetworkReader{client: client}
}

// Read 读取并解码已完成的响应体，ex.ID 为 Network 请求ID
func (r *NetworkReader) Read(ctx context.Context, ex *traffic.Exchange) (model.Body, error) {
	reply, err := r.client.GetResponseBody(ctx, network.NewGetResponseBodyArgs(network.RequestID(ex.ID)))
	if err != nil {
		return model.Body{}, fmt.Errorf("network get response body: %w", err)
	}
	ex.Body = rawBytes(reply.Body, reply.Base64Encoded)
	return Decode(ex.Body, ex.ContentType()), nil
}
