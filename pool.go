package webserver

const (
	DEFAULT_BUFFER_POOL = 16
	PIPE_BUFFER_SIZE    = 128
)

func (ep *EP) GetBufferPoolItem() (*[]byte, error) {
	var iface, err = ep.bufferPool.Get()
	if err != nil {
		return nil, err
	}
	var buffer, ok = iface.(*[]byte)
	if !ok {
		return nil, ErrorGetPoolBuffer
	}
	return buffer, nil
}

func (ep *EP) PutBufferPoolItem(buffer *[]byte) {
	ep.bufferPool.Put(buffer)
}
