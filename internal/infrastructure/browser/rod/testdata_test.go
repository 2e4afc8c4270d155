package rod

const (
	ListingHTML = `<!DOCTYPE html>
<html>
<head><title>Companies</title></head>
<body>
	<ul id="list">
		<li>Acme Corp — robots</li>
		<li>Globex — energy</li>
	</ul>
	<nav class="pagination">
		<a href="?page=1" class="current">1</a>
		<a href="?page=2">2</a>
		<button id="next" class="next">Next</button>
		<a href="/hidden" style="display:none">Hidden</a>
	</nav>
	<script>
		document.getElementById('next').addEventListener('click', function() {
			document.getElementById('list').innerHTML = '<li>Initech — software</li>';
			document.title = 'Companies page 2';
		});
	</script>
</body>
</html>`

	ScrollableHTML = `<!DOCTYPE html>
<html>
<body style="margin:0">
	<div id="feed" style="height: 3000px;">Top of feed</div>
	<script>
		window.addEventListener('scroll', function() {
			if (window.innerHeight + window.scrollY >= document.body.scrollHeight - 10) {
				const more = document.createElement('div');
				more.style.height = '2000px';
				more.textContent = 'More items';
				document.body.appendChild(more);
			}
		});
	</script>
</body>
</html>`
)
