package syncer

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mpetrovs/attachsync/internal/common"
	"github.com/mpetrovs/attachsync/internal/server/remote"
)

// fakeRemote is an in-memory remote.Client. Setting failWith makes every
// call return that error until cleared.
type fakeRemote struct {
	mu       sync.Mutex
	failWith error

	content   map[string][]byte
	relations map[int64][]remote.Attachment
	nextGUID  int

	uploadCalls   int
	linkCalls     int
	listCalls     int
	downloadCalls int
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		content:   make(map[string][]byte),
		relations: make(map[int64][]remote.Attachment),
	}
}

func (f *fakeRemote) fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

// seed registers an attachment as already existing on the tracker.
func (f *fakeRemote) seed(workItemID int64, fileName string, data []byte) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextGUID++
	guid := fmt.Sprintf("remote-%d", f.nextGUID)
	f.content[guid] = data
	f.relations[workItemID] = append(f.relations[workItemID], remote.Attachment{
		GUID:      guid,
		URL:       "https://tracker/_apis/wit/attachments/" + guid,
		FileName:  fileName,
		SizeBytes: int64(len(data)),
	})
	return guid
}

func (f *fakeRemote) Upload(ctx context.Context, fileName string, data []byte) (remote.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploadCalls++
	if f.failWith != nil {
		return remote.Attachment{}, f.failWith
	}
	f.nextGUID++
	guid := fmt.Sprintf("remote-%d", f.nextGUID)
	f.content[guid] = append([]byte(nil), data...)
	return remote.Attachment{
		GUID:      guid,
		URL:       "https://tracker/_apis/wit/attachments/" + guid,
		FileName:  fileName,
		SizeBytes: int64(len(data)),
	}, nil
}

func (f *fakeRemote) Link(ctx context.Context, workItemID int64, url, fileName, comment string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.linkCalls++
	if f.failWith != nil {
		return f.failWith
	}
	guid := url[strings.LastIndex(url, "/")+1:]
	f.relations[workItemID] = append(f.relations[workItemID], remote.Attachment{
		GUID:      guid,
		URL:       url,
		FileName:  fileName,
		SizeBytes: int64(len(f.content[guid])),
	})
	return nil
}

func (f *fakeRemote) List(ctx context.Context, workItemID int64) ([]remote.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.listCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	return append([]remote.Attachment(nil), f.relations[workItemID]...), nil
}

func (f *fakeRemote) Download(ctx context.Context, guid string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	data, ok := f.content[guid]
	if !ok {
		return nil, common.UpstreamFromStatus("download", 404)
	}
	return append([]byte(nil), data...), nil
}
